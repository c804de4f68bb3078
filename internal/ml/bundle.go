package ml

import (
	"context"
	"fmt"
	"math"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jengzang/drivesense-backend/internal/analysis/features"
	"github.com/jengzang/drivesense-backend/internal/models"
)

// Bundle kinds
const (
	KindLinear = "linear"
	KindRemote = "remote"
)

// Bundle describes a model artefact on disk. Classifier bundles also
// carry the class mapping and the window geometry the model was trained
// with.
//
//	kind: linear
//	sampling_rate: 50
//	window_duration_sec: 2
//	class_mapping: {0: AGGRESSIVE, 1: NORMAL, 2: SLOW}
//	linear:
//	  weights: [[...], [...], [...]]
//	  intercepts: [0.1, 0.0, -0.1]
type Bundle struct {
	Kind              string         `yaml:"kind"`
	SamplingRate      float64        `yaml:"sampling_rate"`
	WindowDurationSec float64        `yaml:"window_duration_sec"`
	ClassMapping      map[int]string `yaml:"class_mapping"`
	FeatureNames      []string       `yaml:"feature_names"`
	Linear            *LinearParams  `yaml:"linear"`
	Remote            *RemoteParams  `yaml:"remote"`
}

// LinearParams are the coefficients of an in-process linear model
type LinearParams struct {
	Weights    [][]float64 `yaml:"weights"`
	Intercepts []float64   `yaml:"intercepts"`
}

// RemoteParams locate a model served over HTTP
type RemoteParams struct {
	Endpoint string        `yaml:"endpoint"`
	Health   string        `yaml:"health"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WindowLength is sampling_rate × window_duration_sec
func (b *Bundle) WindowLength() int {
	return int(math.Round(b.SamplingRate * b.WindowDurationSec))
}

// ReadBundle parses a bundle file
func ReadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var b Bundle
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	return &b, nil
}

// LoadClassifier loads the behaviour classifier. Any failure is reported
// as ErrModelUnavailable.
func LoadClassifier(ctx context.Context, path string) (*Classifier, error) {
	c, err := loadClassifier(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: classifier %s: %v", ErrModelUnavailable, path, err)
	}
	return c, nil
}

func loadClassifier(ctx context.Context, path string) (*Classifier, error) {
	b, err := ReadBundle(path)
	if err != nil {
		return nil, err
	}

	if b.SamplingRate <= 0 || b.WindowDurationSec <= 0 {
		return nil, fmt.Errorf("sampling_rate and window_duration_sec must be positive")
	}
	if b.WindowLength() < 1 {
		return nil, fmt.Errorf("window length rounds to %d samples", b.WindowLength())
	}
	if len(b.ClassMapping) == 0 {
		return nil, fmt.Errorf("class_mapping is empty")
	}
	if len(b.FeatureNames) > 0 && !slices.Equal(b.FeatureNames, features.Names()) {
		return nil, fmt.Errorf("feature_names do not match the extractor channel order")
	}

	mapping := make(ClassMapping, len(b.ClassMapping))
	for idx, label := range b.ClassMapping {
		if label == "" {
			return nil, fmt.Errorf("class %d has an empty label", idx)
		}
		mapping[idx] = models.Label(label)
	}

	model, err := buildPredictor(ctx, b, features.Length)
	if err != nil {
		return nil, err
	}
	if lm, ok := model.(*LinearModel); ok {
		for idx := range mapping {
			if idx < 0 || idx >= lm.Outputs() {
				return nil, fmt.Errorf("class %d has no weight row (model has %d)", idx, lm.Outputs())
			}
		}
	}

	return NewClassifier(model, mapping, b.WindowLength()), nil
}

// LoadScorer loads the maintenance regressor. Any failure is reported as
// ErrModelUnavailable.
func LoadScorer(ctx context.Context, path string) (*Scorer, error) {
	s, err := loadScorer(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: regressor %s: %v", ErrModelUnavailable, path, err)
	}
	return s, nil
}

func loadScorer(ctx context.Context, path string) (*Scorer, error) {
	b, err := ReadBundle(path)
	if err != nil {
		return nil, err
	}
	if len(b.FeatureNames) > 0 && !slices.Equal(b.FeatureNames, ScorerFeatureNames) {
		return nil, fmt.Errorf("feature_names do not match the session aggregate order")
	}

	model, err := buildPredictor(ctx, b, len(ScorerFeatureNames))
	if err != nil {
		return nil, err
	}
	if lm, ok := model.(*LinearModel); ok && lm.Outputs() != 1 {
		return nil, fmt.Errorf("regressor must have one weight row, has %d", lm.Outputs())
	}
	return NewScorer(model), nil
}

func buildPredictor(ctx context.Context, b *Bundle, inputs int) (Predictor, error) {
	switch b.Kind {
	case KindLinear:
		if b.Linear == nil {
			return nil, fmt.Errorf("linear bundle without linear section")
		}
		m, err := NewLinearModel(b.Linear.Weights, b.Linear.Intercepts)
		if err != nil {
			return nil, err
		}
		if m.Inputs() != inputs {
			return nil, fmt.Errorf("model expects %d inputs, want %d", m.Inputs(), inputs)
		}
		return m, nil

	case KindRemote:
		if b.Remote == nil || b.Remote.Endpoint == "" {
			return nil, fmt.Errorf("remote bundle without endpoint")
		}
		m := NewRemoteModel(b.Remote.Endpoint, b.Remote.Timeout)
		if b.Remote.Health != "" {
			if err := m.Ping(ctx, b.Remote.Health); err != nil {
				return nil, err
			}
		}
		return m, nil
	}
	return nil, fmt.Errorf("unknown bundle kind %q", b.Kind)
}
