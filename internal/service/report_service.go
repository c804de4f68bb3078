package service

import (
	"context"
	"log/slog"

	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// ReportService derives user-level maintenance figures from sessions
type ReportService struct {
	stores repository.Stores
	logger *slog.Logger
}

// NewReportService creates a new report service
func NewReportService(stores repository.Stores, logger *slog.Logger) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{stores: stores, logger: logger}
}

// UserUrgency is the mean urgency over sessions that have one, or nil
// when none has been scored.
func UserUrgency(sessions []models.Session) *float64 {
	var total float64
	var count int
	for _, s := range sessions {
		if s.MaintenanceUrgency != nil {
			total += *s.MaintenanceUrgency
			count++
		}
	}
	if count == 0 {
		return nil
	}
	mean := total / float64(count)
	return &mean
}

// UpdateMaintenance recomputes and stores the user's urgency
func (s *ReportService) UpdateMaintenance(ctx context.Context, userID string) (*models.User, error) {
	sessions, err := s.stores.Sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	urgency := UserUrgency(sessions)
	if err := s.stores.Users.SetMaintenanceUrgency(ctx, userID, urgency); err != nil {
		return nil, err
	}

	s.logger.Info("maintenance urgency updated", "user_id", userID, "sessions", len(sessions), "urgency", urgency)
	return s.stores.Users.GetByID(ctx, userID)
}
