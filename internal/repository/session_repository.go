package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/drivesense-backend/internal/database"
	"github.com/jengzang/drivesense-backend/internal/models"
)

// SessionRepository handles database operations for driving sessions
type SessionRepository struct {
	db *sql.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, start_time_ms, end_time_ms,
	count_aggressive, count_normal, count_slow, maintenance_urgency`

// Create inserts a new open session
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	var end sql.NullInt64
	if s.EndTime != nil {
		end = sql.NullInt64{Int64: toMillis(*s.EndTime), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, start_time_ms, end_time_ms) VALUES (?, ?, ?, ?)`,
		s.ID, s.UserID, toMillis(s.StartTime), end,
	)
	if isConstraintError(err) {
		return fmt.Errorf("%w: session %s: %v", ErrInvalidInput, s.ID, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	return getSession(ctx, r.db, id)
}

// ListByUser retrieves a user's sessions ordered by start time
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE user_id = ? ORDER BY start_time_ms, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []models.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

// Close sets the session end time unless it is already set
func (r *SessionRepository) Close(ctx context.Context, id string, end time.Time) (*models.Session, error) {
	var closed *models.Session
	err := database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET end_time_ms = ? WHERE id = ? AND end_time_ms IS NULL`,
			toMillis(end), id,
		); err != nil {
			return fmt.Errorf("failed to close session: %w", err)
		}

		s, err := getSession(ctx, tx, id)
		if err != nil {
			return err
		}
		closed = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// SaveScore stores label counts and urgency on the session
func (r *SessionRepository) SaveScore(ctx context.Context, id string, score models.SessionScore) error {
	agg := score.Aggregate
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET count_aggressive = ?, count_normal = ?, count_slow = ?, maintenance_urgency = ?
		 WHERE id = ?`,
		agg.CountAggressive, agg.CountNormal, agg.CountSlow, score.Urgency, id,
	)
	if err != nil {
		return fmt.Errorf("failed to save session score: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getSession(ctx context.Context, q queryRower, id string) (*models.Session, error) {
	row := q.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return s, nil
}

func scanSession(sc rowScanner) (*models.Session, error) {
	var (
		s       models.Session
		startMs int64
		endMs   sql.NullInt64
		urgency sql.NullFloat64
	)
	var aggressive, normal, slow sql.NullInt64
	if err := sc.Scan(&s.ID, &s.UserID, &startMs, &endMs, &aggressive, &normal, &slow, &urgency); err != nil {
		return nil, err
	}

	s.StartTime = fromMillis(startMs)
	if endMs.Valid {
		end := fromMillis(endMs.Int64)
		s.EndTime = &end
	}
	s.CountAggressive = nullInt(aggressive)
	s.CountNormal = nullInt(normal)
	s.CountSlow = nullInt(slow)
	if urgency.Valid {
		s.MaintenanceUrgency = &urgency.Float64
	}
	return &s, nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
