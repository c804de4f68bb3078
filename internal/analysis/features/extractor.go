// Package features turns an ordered window of telemetry samples into the
// fixed-length vector the behaviour classifier was trained on.
package features

import (
	"errors"

	"github.com/jengzang/drivesense-backend/internal/models"
	"github.com/jengzang/drivesense-backend/internal/stats"
)

// ErrEmptyInput is returned when Extract is given no samples
var ErrEmptyInput = errors.New("features: empty sample window")

// Channel order and per-channel statistics are fixed by the trained
// model. Changing either requires retraining the classifier.
var (
	Channels = []string{"AccX", "AccY", "AccZ", "GyroX", "GyroY", "GyroZ", "Acc_Mag", "Gyro_Mag"}
	Stats    = []string{"mean", "std", "min", "max"}
)

// Length is the number of values in a FeatureVector
var Length = len(Channels) * len(Stats)

// FeatureVector is the classifier input, laid out channel-major:
// AccX(mean,std,min,max), AccY(...), ..., Gyro_Mag(...)
type FeatureVector []float64

// Names returns the feature names in vector order, e.g. "AccX_mean"
func Names() []string {
	names := make([]string, 0, Length)
	for _, ch := range Channels {
		for _, st := range Stats {
			names = append(names, ch+"_"+st)
		}
	}
	return names
}

// Extract computes the feature vector of a window. It is pure: the same
// samples always produce a bit-identical vector.
func Extract(samples []models.TelemetrySample) (FeatureVector, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}

	n := len(samples)
	columns := make([][]float64, len(Channels))
	for i := range columns {
		columns[i] = make([]float64, n)
	}

	for i, s := range samples {
		columns[0][i] = s.AccX
		columns[1][i] = s.AccY
		columns[2][i] = s.AccZ
		columns[3][i] = s.GyroX
		columns[4][i] = s.GyroY
		columns[5][i] = s.GyroZ
		columns[6][i] = stats.Magnitude(s.AccX, s.AccY, s.AccZ)
		columns[7][i] = stats.Magnitude(s.GyroX, s.GyroY, s.GyroZ)
	}

	vector := make(FeatureVector, 0, Length)
	for _, col := range columns {
		sum := stats.Summarize(col)
		vector = append(vector, sum.Mean, sum.Std, sum.Min, sum.Max)
	}
	return vector, nil
}
