package ml

import (
	"context"
	"fmt"
)

// LinearModel evaluates one or more linear functions of the input.
// With a single output it is a regressor. With several outputs it is a
// multinomial classifier whose prediction is the index of the largest
// score (softmax is monotonic, so the argmax of the logits is enough).
type LinearModel struct {
	weights    [][]float64
	intercepts []float64
	inputs     int
}

// NewLinearModel validates the parameter shapes. weights holds one row
// per output and every row must have the same width.
func NewLinearModel(weights [][]float64, intercepts []float64) (*LinearModel, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("linear model has no weights")
	}
	if len(intercepts) != len(weights) {
		return nil, fmt.Errorf("linear model has %d weight rows but %d intercepts", len(weights), len(intercepts))
	}

	inputs := len(weights[0])
	if inputs == 0 {
		return nil, fmt.Errorf("linear model has empty weight rows")
	}
	for i, row := range weights {
		if len(row) != inputs {
			return nil, fmt.Errorf("weight row %d has %d values, want %d", i, len(row), inputs)
		}
	}

	return &LinearModel{weights: weights, intercepts: intercepts, inputs: inputs}, nil
}

// Inputs returns the expected feature vector width
func (m *LinearModel) Inputs() int {
	return m.inputs
}

// Outputs returns the number of linear functions
func (m *LinearModel) Outputs() int {
	return len(m.weights)
}

// Predict implements Predictor
func (m *LinearModel) Predict(_ context.Context, x []float64) (float64, error) {
	if len(x) != m.inputs {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrInputShape, len(x), m.inputs)
	}

	if len(m.weights) == 1 {
		return m.score(0, x), nil
	}

	best, bestScore := 0, m.score(0, x)
	for k := 1; k < len(m.weights); k++ {
		if s := m.score(k, x); s > bestScore {
			best, bestScore = k, s
		}
	}
	return float64(best), nil
}

func (m *LinearModel) score(k int, x []float64) float64 {
	s := m.intercepts[k]
	for i, w := range m.weights[k] {
		s += w * x[i]
	}
	return s
}
