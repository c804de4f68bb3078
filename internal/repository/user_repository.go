package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jengzang/drivesense-backend/internal/models"
)

// UserRepository handles database operations for users
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, email, full_name, registration_ms, maintenance_urgency`

// Create inserts a user. Email must be unique.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.FullName, toMillis(u.RegistrationDate), u.MaintenanceUrgency,
	)
	if isConstraintError(err) {
		return fmt.Errorf("%w: user %s: %v", ErrInvalidInput, u.Email, err)
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// List retrieves all users except excludeEmail
func (r *UserRepository) List(ctx context.Context, excludeEmail string) ([]models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email != ? ORDER BY registration_ms, id`,
		excludeEmail,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// SetMaintenanceUrgency stores the user-level urgency; nil clears it
func (r *UserRepository) SetMaintenanceUrgency(ctx context.Context, id string, urgency *float64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET maintenance_urgency = ? WHERE id = ?`, urgency, id)
	if err != nil {
		return fmt.Errorf("failed to update user urgency: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*models.User, error) {
	var (
		u       models.User
		regMs   int64
		urgency sql.NullFloat64
	)
	if err := s.Scan(&u.ID, &u.Email, &u.FullName, &regMs, &urgency); err != nil {
		return nil, err
	}
	u.RegistrationDate = fromMillis(regMs)
	if urgency.Valid {
		u.MaintenanceUrgency = &urgency.Float64
	}
	return &u, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
