package features

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/drivesense-backend/internal/models"
)

const windowLen = 100

func constantWindow(n int, s models.TelemetrySample) []models.TelemetrySample {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	out := make([]models.TelemetrySample, n)
	for i := range out {
		out[i] = s
		out[i].Timestamp = base.Add(time.Duration(i) * 20 * time.Millisecond)
	}
	return out
}

func rampWindow(n int) []models.TelemetrySample {
	base := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	out := make([]models.TelemetrySample, n)
	for i := range out {
		f := float64(i)
		out[i] = models.TelemetrySample{
			Timestamp: base.Add(time.Duration(i) * 20 * time.Millisecond),
			AccX:      math.Sin(f / 7),
			AccY:      math.Cos(f / 11),
			AccZ:      9.81 + 0.1*f,
			GyroX:     0.01 * f,
			GyroY:     -0.02 * f,
			GyroZ:     math.Sin(f / 3),
		}
	}
	return out
}

func TestExtract_EmptyInput(t *testing.T) {
	vec, err := Extract(nil)
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Nil(t, vec)

	vec, err = Extract([]models.TelemetrySample{})
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Nil(t, vec)
}

func TestExtract_Length(t *testing.T) {
	vec, err := Extract(rampWindow(windowLen))
	require.NoError(t, err)
	assert.Len(t, vec, 32)
	assert.Len(t, Names(), 32)
	assert.Equal(t, "AccX_mean", Names()[0])
	assert.Equal(t, "Gyro_Mag_max", Names()[31])
}

func TestExtract_Deterministic(t *testing.T) {
	window := rampWindow(windowLen)

	first, err := Extract(window)
	require.NoError(t, err)

	for run := 0; run < 5; run++ {
		again, err := Extract(window)
		require.NoError(t, err)
		for i := range first {
			assert.Equal(t, math.Float64bits(first[i]), math.Float64bits(again[i]), "feature %s differs", Names()[i])
		}
	}
}

func TestExtract_ConstantSignal(t *testing.T) {
	window := constantWindow(windowLen, models.TelemetrySample{
		AccX: 0.3, AccY: -1.7, AccZ: 9.81,
		GyroX: 0.02, GyroY: 0.11, GyroZ: -0.4,
	})

	vec, err := Extract(window)
	require.NoError(t, err)

	for ch := range Channels {
		mean, std, min, max := vec[ch*4], vec[ch*4+1], vec[ch*4+2], vec[ch*4+3]
		assert.Equal(t, 0.0, std, "channel %s std", Channels[ch])
		assert.Equal(t, mean, min, "channel %s min", Channels[ch])
		assert.Equal(t, mean, max, "channel %s max", Channels[ch])
	}
}

func TestExtract_AccMagnitude(t *testing.T) {
	window := constantWindow(windowLen, models.TelemetrySample{AccX: 3, AccY: 4})

	vec, err := Extract(window)
	require.NoError(t, err)

	accMag := vec[6*4 : 6*4+4]
	assert.Equal(t, []float64{5.0, 0.0, 5.0, 5.0}, []float64(accMag))

	gyroMag := vec[7*4 : 7*4+4]
	assert.Equal(t, []float64{0, 0, 0, 0}, []float64(gyroMag))
}

func TestExtract_ChannelOrder(t *testing.T) {
	window := []models.TelemetrySample{
		{AccX: 1, AccY: 2, AccZ: 3, GyroX: 4, GyroY: 5, GyroZ: 6},
		{AccX: 3, AccY: 4, AccZ: 5, GyroX: 6, GyroY: 7, GyroZ: 8},
	}

	vec, err := Extract(window)
	require.NoError(t, err)

	// mean, std, min, max for each raw axis
	assert.Equal(t, []float64{2, 1, 1, 3}, []float64(vec[0:4]))
	assert.Equal(t, []float64{3, 1, 2, 4}, []float64(vec[4:8]))
	assert.Equal(t, []float64{4, 1, 3, 5}, []float64(vec[8:12]))
	assert.Equal(t, []float64{5, 1, 4, 6}, []float64(vec[12:16]))
	assert.Equal(t, []float64{6, 1, 5, 7}, []float64(vec[16:20]))
	assert.Equal(t, []float64{7, 1, 6, 8}, []float64(vec[20:24]))

	assert.InDelta(t, math.Sqrt(14), vec[26], 1e-12) // AccMag min
	assert.InDelta(t, math.Sqrt(50), vec[27], 1e-12) // AccMag max
}
