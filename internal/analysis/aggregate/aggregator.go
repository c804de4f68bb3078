// Package aggregate turns a closed session's behaviour records into the
// summary the maintenance regressor consumes.
package aggregate

import (
	"context"
	"errors"
	"fmt"

	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/repository"
	"github.com/jengzang/drivesense-backend/internal/stats"
)

// ErrSessionNotClosed is returned for sessions without an end time
var ErrSessionNotClosed = errors.New("session not closed")

// Aggregator reads sessions and their records from the stores
type Aggregator struct {
	sessions  repository.SessionStore
	behaviors repository.BehaviorStore
}

// NewAggregator creates an aggregator over the given stores
func NewAggregator(sessions repository.SessionStore, behaviors repository.BehaviorStore) *Aggregator {
	return &Aggregator{sessions: sessions, behaviors: behaviors}
}

// Aggregate recomputes the session summary from the persisted records.
// It has no side effects and may be called any number of times.
func (a *Aggregator) Aggregate(ctx context.Context, sessionID string) (*models.SessionAggregate, error) {
	session, err := a.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.IsClosed() {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionNotClosed)
	}

	records, err := a.behaviors.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	agg := Summarize(records)
	agg.SessionID = sessionID
	agg.DurationMinutes = session.EndTime.Sub(session.StartTime).Minutes()
	return &agg, nil
}

// Summarize computes counts and magnitude statistics over records.
// Duration and session ID are left for the caller.
func Summarize(records []models.BehaviorRecord) models.SessionAggregate {
	agg := models.SessionAggregate{
		RecordCount: len(records),
		LabelCounts: map[models.Label]int{
			models.LabelAggressive: 0,
			models.LabelNormal:     0,
			models.LabelSlow:       0,
		},
	}

	accMag := make([]float64, len(records))
	gyroMag := make([]float64, len(records))
	for i, r := range records {
		agg.LabelCounts[r.Label]++
		accMag[i] = stats.Magnitude(r.AccX, r.AccY, r.AccZ)
		gyroMag[i] = stats.Magnitude(r.GyroX, r.GyroY, r.GyroZ)
	}

	agg.CountAggressive = agg.LabelCounts[models.LabelAggressive]
	agg.CountNormal = agg.LabelCounts[models.LabelNormal]
	agg.CountSlow = agg.LabelCounts[models.LabelSlow]

	// Empty sessions report 0.0 for every statistic
	acc := stats.Summarize(accMag)
	gyro := stats.Summarize(gyroMag)
	agg.AccelMagMean, agg.AccelMagStd = acc.Mean, acc.Std
	agg.GyroMagMean, agg.GyroMagStd = gyro.Mean, gyro.Std
	agg.AccelMagP95 = stats.Percentile(accMag, 95)
	agg.GyroMagP95 = stats.Percentile(gyroMag, 95)
	return agg
}
