// Package ml wraps the pre-trained behaviour classifier and maintenance
// regressor behind small contracts. The models themselves are opaque:
// they are loaded once at startup from bundle files and shared by
// reference for the lifetime of the process.
package ml

import (
	"context"
	"errors"
)

var (
	// ErrModelUnavailable is returned when a model bundle cannot be
	// loaded. The server refuses to start rather than serve without it.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrUnknownClass is returned when the classifier emits an index
	// that is missing from the bundle's class mapping.
	ErrUnknownClass = errors.New("class index not in mapping")

	// ErrInputShape is returned when a feature vector does not match
	// the width the model was trained on.
	ErrInputShape = errors.New("feature vector has wrong length")
)

// Predictor is an opaque model: one feature vector in, one number out.
// Classifiers return the class index, regressors the predicted value.
type Predictor interface {
	Predict(ctx context.Context, x []float64) (float64, error)
}

// PredictorFunc adapts a function to the Predictor interface
type PredictorFunc func(ctx context.Context, x []float64) (float64, error)

// Predict calls f(ctx, x)
func (f PredictorFunc) Predict(ctx context.Context, x []float64) (float64, error) {
	return f(ctx, x)
}
