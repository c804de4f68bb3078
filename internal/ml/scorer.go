package ml

import (
	"context"
	"fmt"
	"math"

	"github.com/jengzang/drivesense-backend/internal/models"
)

// ScorerFeatureNames is the regressor input order. It is part of the
// contract with the trained model and must not be reordered.
var ScorerFeatureNames = []string{
	"count_aggressive",
	"count_normal",
	"count_slow",
	"duration_minutes",
	"accel_mag_mean",
	"accel_mag_std",
	"gyro_mag_mean",
	"gyro_mag_std",
}

// ScorerInput lays out a session aggregate as the regressor input
func ScorerInput(agg models.SessionAggregate) []float64 {
	return []float64{
		float64(agg.CountAggressive),
		float64(agg.CountNormal),
		float64(agg.CountSlow),
		agg.DurationMinutes,
		agg.AccelMagMean,
		agg.AccelMagStd,
		agg.GyroMagMean,
		agg.GyroMagStd,
	}
}

// Scorer is the maintenance urgency regressor adapter. It returns the
// raw model output; banding the score is left to the client.
type Scorer struct {
	model Predictor
}

// NewScorer wraps a regression model
func NewScorer(model Predictor) *Scorer {
	return &Scorer{model: model}
}

// Score predicts the maintenance urgency of a session
func (s *Scorer) Score(ctx context.Context, agg models.SessionAggregate) (float64, error) {
	urgency, err := s.model.Predict(ctx, ScorerInput(agg))
	if err != nil {
		return 0, fmt.Errorf("score session %s: %w", agg.SessionID, err)
	}
	if math.IsNaN(urgency) || math.IsInf(urgency, 0) {
		return 0, fmt.Errorf("score session %s: model returned %v", agg.SessionID, urgency)
	}
	return urgency, nil
}
