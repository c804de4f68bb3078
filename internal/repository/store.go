package repository

import (
	"context"
	"time"

	"github.com/jengzang/drivesense-backend/internal/models"
)

// UserStore persists user accounts
type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// List returns every user except the one with excludeEmail, ordered
	// by registration date.
	List(ctx context.Context, excludeEmail string) ([]models.User, error)
	SetMaintenanceUrgency(ctx context.Context, id string, urgency *float64) error
}

// SessionStore persists driving sessions
type SessionStore interface {
	Create(ctx context.Context, s *models.Session) error
	GetByID(ctx context.Context, id string) (*models.Session, error)
	// ListByUser returns the user's sessions, oldest first.
	ListByUser(ctx context.Context, userID string) ([]models.Session, error)
	// Close sets the end time if the session is still open and returns
	// the stored session. Closing a closed session is a no-op.
	Close(ctx context.Context, id string, end time.Time) (*models.Session, error)
	SaveScore(ctx context.Context, id string, score models.SessionScore) error
}

// BehaviorStore persists labelled telemetry samples
type BehaviorStore interface {
	// InsertBatch stores all records or none of them.
	InsertBatch(ctx context.Context, records []models.BehaviorRecord) error
	// ListBySession returns the session's records ordered by timestamp.
	ListBySession(ctx context.Context, sessionID string) ([]models.BehaviorRecord, error)
}

// Stores bundles the three stores behind one backend
type Stores struct {
	Users     UserStore
	Sessions  SessionStore
	Behaviors BehaviorStore
}
