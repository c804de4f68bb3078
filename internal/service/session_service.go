package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jengzang/drivesense-backend/internal/analysis/aggregate"
	"github.com/jengzang/drivesense-backend/internal/metrics"
	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
)

// ErrSessionStopped is returned when records are added to a stopped session
var ErrSessionStopped = errors.New("session already stopped")

// SessionScorer maps a session aggregate to a maintenance urgency
type SessionScorer interface {
	Score(ctx context.Context, agg models.SessionAggregate) (float64, error)
}

// Runner executes model calls on the shared inference pool
type Runner interface {
	Do(ctx context.Context, fn func(context.Context) error) error
}

// SessionService handles business logic for driving sessions
type SessionService struct {
	stores     repository.Stores
	aggregator *aggregate.Aggregator
	labels     map[models.Label]bool
	scorer     SessionScorer
	pool       Runner
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionService creates a new session service. labels are the ones
// the classifier can produce; empty means the default class mapping.
func NewSessionService(stores repository.Stores, labels []models.Label, scorer SessionScorer, pool Runner, m *metrics.Metrics, logger *slog.Logger) *SessionService {
	if len(labels) == 0 {
		labels = []models.Label{models.LabelAggressive, models.LabelNormal, models.LabelSlow}
	}
	known := make(map[models.Label]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	return &SessionService{
		stores:     stores,
		aggregator: aggregate.NewAggregator(stores.Sessions, stores.Behaviors),
		labels:     known,
		scorer:     scorer,
		pool:       pool,
		metrics:    m,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *SessionService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Millisecond)
}

// Start opens a new session for the user
func (s *SessionService) Start(ctx context.Context, userID string) (*models.Session, error) {
	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		StartTime: s.timestamp(),
	}
	if err := s.stores.Sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("session started", "session_id", session.ID, "user_id", userID)
	return session, nil
}

// Owned returns the session if it belongs to userID. Sessions of other
// users are reported as not found.
func (s *SessionService) Owned(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	session, err := s.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != userID {
		return nil, fmt.Errorf("session %s: %w", sessionID, repository.ErrNotFound)
	}
	return session, nil
}

// Stop closes the session, aggregates its records and stores the label
// counts and maintenance urgency. A regressor failure leaves the urgency
// unset but still stores the counts. Stopping twice keeps the first end
// time and rescoring is harmless.
func (s *SessionService) Stop(ctx context.Context, userID, sessionID string) (*models.Session, error) {
	if _, err := s.Owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	if _, err := s.stores.Sessions.Close(ctx, sessionID, s.timestamp()); err != nil {
		return nil, err
	}

	agg, err := s.aggregator.Aggregate(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate session: %w", err)
	}

	score := models.SessionScore{Aggregate: *agg}
	var urgency float64
	err = s.pool.Do(ctx, func(ctx context.Context) error {
		var err error
		urgency, err = s.scorer.Score(ctx, *agg)
		return err
	})
	if err != nil {
		s.metrics.SessionsScored.WithLabelValues("failed").Inc()
		s.logger.Warn("session scoring failed", "session_id", sessionID, "error", err)
	} else {
		s.metrics.SessionsScored.WithLabelValues("scored").Inc()
		score.Urgency = &urgency
	}

	if err := s.stores.Sessions.SaveScore(ctx, sessionID, score); err != nil {
		return nil, err
	}

	s.logger.Info("session stopped",
		"session_id", sessionID,
		"records", agg.RecordCount,
		"duration_minutes", agg.DurationMinutes,
		"urgency", score.Urgency,
	)
	return s.stores.Sessions.GetByID(ctx, sessionID)
}

// List returns the user's sessions, oldest first
func (s *SessionService) List(ctx context.Context, userID string) ([]models.Session, error) {
	return s.stores.Sessions.ListByUser(ctx, userID)
}

// Behaviors returns the records of one of the user's sessions
func (s *SessionService) Behaviors(ctx context.Context, userID, sessionID string) ([]models.BehaviorRecord, error) {
	if _, err := s.Owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.stores.Behaviors.ListBySession(ctx, sessionID)
}

// AddBehavior stores one manually labelled record. The label must be one
// the classifier produces.
func (s *SessionService) AddBehavior(ctx context.Context, userID string, req models.BehaviorCreate) (*models.BehaviorRecord, error) {
	if !s.labels[req.Label] {
		return nil, fmt.Errorf("%w: unknown label %q", repository.ErrInvalidInput, req.Label)
	}

	session, err := s.Owned(ctx, userID, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.IsClosed() {
		return nil, fmt.Errorf("session %s: %w", req.SessionID, ErrSessionStopped)
	}

	records := []models.BehaviorRecord{models.NewBehaviorRecord(req.SessionID, req.Sample(), req.Label)}
	if err := s.stores.Behaviors.InsertBatch(ctx, records); err != nil {
		return nil, err
	}
	return &records[0], nil
}

// Aggregate recomputes the summary of one of the user's closed sessions
func (s *SessionService) Aggregate(ctx context.Context, userID, sessionID string) (*models.SessionAggregate, error) {
	if _, err := s.Owned(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	return s.aggregator.Aggregate(ctx, sessionID)
}
