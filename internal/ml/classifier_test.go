package ml

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/drivesense-backend/internal/analysis/features"
	"github.com/jengzang/drivesense-backend/internal/models"
)

func fixedIndex(idx float64) Predictor {
	return PredictorFunc(func(context.Context, []float64) (float64, error) {
		return idx, nil
	})
}

func TestClassifier_MapsIndexToLabel(t *testing.T) {
	ctx := context.Background()
	vec := make(features.FeatureVector, features.Length)

	for idx, want := range DefaultClassMapping() {
		c := NewClassifier(fixedIndex(float64(idx)), DefaultClassMapping(), 100)
		got, err := c.Classify(ctx, vec)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestClassifier_CustomMapping(t *testing.T) {
	mapping := ClassMapping{0: "CALM", 1: "SPORTY"}
	c := NewClassifier(fixedIndex(1), mapping, 10)

	got, err := c.Classify(context.Background(), make(features.FeatureVector, features.Length))
	require.NoError(t, err)
	assert.Equal(t, models.Label("SPORTY"), got)
	assert.Equal(t, []models.Label{"CALM", "SPORTY"}, c.Labels())
	assert.Equal(t, 10, c.WindowLength())
}

func TestClassifier_UnknownIndex(t *testing.T) {
	vec := make(features.FeatureVector, features.Length)

	for _, raw := range []float64{7, 0.5, math.NaN(), math.Inf(1)} {
		c := NewClassifier(fixedIndex(raw), DefaultClassMapping(), 100)
		_, err := c.Classify(context.Background(), vec)
		assert.ErrorIs(t, err, ErrUnknownClass, "raw=%v", raw)
	}
}

func TestClassifier_RejectsWrongShape(t *testing.T) {
	called := false
	model := PredictorFunc(func(context.Context, []float64) (float64, error) {
		called = true
		return 0, nil
	})
	c := NewClassifier(model, DefaultClassMapping(), 100)

	_, err := c.Classify(context.Background(), make(features.FeatureVector, 31))
	assert.ErrorIs(t, err, ErrInputShape)
	assert.False(t, called)
}

func TestClassifier_PropagatesModelError(t *testing.T) {
	boom := errors.New("boom")
	model := PredictorFunc(func(context.Context, []float64) (float64, error) {
		return 0, boom
	})
	c := NewClassifier(model, DefaultClassMapping(), 100)

	_, err := c.Classify(context.Background(), make(features.FeatureVector, features.Length))
	assert.ErrorIs(t, err, boom)
}

func TestScorer_InputOrder(t *testing.T) {
	agg := models.SessionAggregate{
		SessionID:       "s1",
		CountAggressive: 3,
		CountNormal:     2,
		CountSlow:       1,
		DurationMinutes: 12.5,
		AccelMagMean:    9.9,
		AccelMagStd:     0.4,
		GyroMagMean:     0.2,
		GyroMagStd:      0.05,
	}

	var seen []float64
	model := PredictorFunc(func(_ context.Context, x []float64) (float64, error) {
		seen = x
		return 0.42, nil
	})

	urgency, err := NewScorer(model).Score(context.Background(), agg)
	require.NoError(t, err)
	assert.Equal(t, 0.42, urgency)
	assert.Equal(t, []float64{3, 2, 1, 12.5, 9.9, 0.4, 0.2, 0.05}, seen)
	assert.Len(t, ScorerFeatureNames, len(seen))
}

func TestScorer_RejectsNonFinite(t *testing.T) {
	for _, v := range []float64{math.NaN(), math.Inf(-1)} {
		_, err := NewScorer(fixedIndex(v)).Score(context.Background(), models.SessionAggregate{})
		assert.Error(t, err)
	}
}
