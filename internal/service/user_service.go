package service

import (
	"context"

	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// UserService handles read access to accounts
type UserService struct {
	stores repository.Stores
}

// NewUserService creates a new user service
func NewUserService(stores repository.Stores) *UserService {
	return &UserService{stores: stores}
}

// List returns all users except the administrator account
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	return s.stores.Users.List(ctx, models.AdminEmail)
}

// Get retrieves a user by ID
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	return s.stores.Users.GetByID(ctx, id)
}

// Sessions returns a user's sessions, oldest first
func (s *UserService) Sessions(ctx context.Context, userID string) ([]models.Session, error) {
	if _, err := s.stores.Users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.stores.Sessions.ListByUser(ctx, userID)
}
