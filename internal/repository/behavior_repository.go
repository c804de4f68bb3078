package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/drivesense-backend/internal/database"
	"github.com/jengzang/drivesense-backend/internal/models"
)

// BehaviorRepository handles database operations for behaviour records
type BehaviorRepository struct {
	db *sql.DB
}

// NewBehaviorRepository creates a new behaviour repository
func NewBehaviorRepository(db *sql.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db}
}

// InsertBatch inserts a window's records in a single transaction
func (r *BehaviorRepository) InsertBatch(ctx context.Context, records []models.BehaviorRecord) error {
	if len(records) == 0 {
		return nil
	}

	return database.Transaction(ctx, r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO behaviors (
				session_id, timestamp_ms, label,
				acc_x, acc_y, acc_z, gyro_x, gyro_y, gyro_z
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		for i := range records {
			rec := &records[i]
			if rec.SessionID == "" || rec.Label == "" {
				return fmt.Errorf("%w: record %d has no session or label", ErrInvalidInput, i)
			}

			res, err := stmt.ExecContext(ctx,
				rec.SessionID, toMillis(rec.Timestamp), string(rec.Label),
				rec.AccX, rec.AccY, rec.AccZ, rec.GyroX, rec.GyroY, rec.GyroZ,
			)
			if isConstraintError(err) {
				return fmt.Errorf("%w: record %d: %v", ErrInvalidInput, i, err)
			}
			if err != nil {
				return fmt.Errorf("failed to insert record %d: %w", i, err)
			}
			if id, err := res.LastInsertId(); err == nil {
				rec.ID = id
			}
		}
		return nil
	})
}

// ListBySession retrieves all records of a session ordered by timestamp
func (r *BehaviorRepository) ListBySession(ctx context.Context, sessionID string) ([]models.BehaviorRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, timestamp_ms, label,
			acc_x, acc_y, acc_z, gyro_x, gyro_y, gyro_z
		FROM behaviors
		WHERE session_id = ?
		ORDER BY timestamp_ms, id
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list behaviors: %w", err)
	}
	defer rows.Close()

	records := []models.BehaviorRecord{}
	for rows.Next() {
		var (
			rec   models.BehaviorRecord
			tsMs  int64
			label string
		)
		if err := rows.Scan(
			&rec.ID, &rec.SessionID, &tsMs, &label,
			&rec.AccX, &rec.AccY, &rec.AccZ, &rec.GyroX, &rec.GyroY, &rec.GyroZ,
		); err != nil {
			return nil, fmt.Errorf("failed to scan behavior: %w", err)
		}
		rec.Timestamp = fromMillis(tsMs)
		rec.Label = models.Label(label)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// NewSQLiteStores wires the SQLite repositories behind the store interfaces
func NewSQLiteStores(db *sql.DB) Stores {
	return Stores{
		Users:     NewUserRepository(db),
		Sessions:  NewSessionRepository(db),
		Behaviors: NewBehaviorRepository(db),
	}
}
