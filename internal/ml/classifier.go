package ml

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/jengzang/drivesense-backend/internal/analysis/features"
	"github.com/jengzang/drivesense-backend/internal/models"
)

// ClassMapping maps the model's raw output index to a label. It comes
// from the model bundle, not from code.
type ClassMapping map[int]models.Label

// DefaultClassMapping is the mapping of the reference behaviour model
func DefaultClassMapping() ClassMapping {
	return ClassMapping{
		0: models.LabelAggressive,
		1: models.LabelNormal,
		2: models.LabelSlow,
	}
}

// Classifier is the streaming behaviour classifier adapter
type Classifier struct {
	model     Predictor
	mapping   ClassMapping
	windowLen int
}

// NewClassifier wraps a model. windowLen is the number of samples the
// model was trained on per window.
func NewClassifier(model Predictor, mapping ClassMapping, windowLen int) *Classifier {
	return &Classifier{model: model, mapping: mapping, windowLen: windowLen}
}

// WindowLength returns the exact window size the model expects
func (c *Classifier) WindowLength() int {
	return c.windowLen
}

// Labels returns the labels of the class mapping ordered by index
func (c *Classifier) Labels() []models.Label {
	idx := make([]int, 0, len(c.mapping))
	for i := range c.mapping {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	labels := make([]models.Label, len(idx))
	for i, k := range idx {
		labels[i] = c.mapping[k]
	}
	return labels
}

// Classify runs the model on a window's feature vector
func (c *Classifier) Classify(ctx context.Context, vec features.FeatureVector) (models.Label, error) {
	if len(vec) != features.Length {
		return "", fmt.Errorf("%w: got %d, want %d", ErrInputShape, len(vec), features.Length)
	}

	raw, err := c.model.Predict(ctx, vec)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	if math.IsNaN(raw) || math.IsInf(raw, 0) || math.Trunc(raw) != raw {
		return "", fmt.Errorf("%w: model returned non-integral index %v", ErrUnknownClass, raw)
	}
	label, ok := c.mapping[int(raw)]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownClass, int(raw))
	}
	return label, nil
}
