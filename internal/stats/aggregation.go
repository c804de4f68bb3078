package stats

import (
	"math"
)

// Summary holds the four statistics computed per feature channel
type Summary struct {
	Mean float64
	Std  float64
	Min  float64
	Max  float64
}

// Summarize computes mean, population standard deviation, min and max.
// An empty slice yields the zero Summary; callers that must reject empty
// input check the length themselves.
func Summarize(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}

	min, max := Min(values), Max(values)
	if min == max {
		// Constant signal: avoid rounding drift in the summed mean
		return Summary{Mean: min, Std: 0, Min: min, Max: max}
	}
	return Summary{
		Mean: Mean(values),
		Std:  PopulationStdDev(values),
		Min:  min,
		Max:  max,
	}
}

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationVariance calculates the variance with denominator n
func PopulationVariance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	mean := Mean(values)
	var sumSquaredDiff float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	return sumSquaredDiff / float64(len(values))
}

// PopulationStdDev calculates the population standard deviation
func PopulationStdDev(values []float64) float64 {
	return math.Sqrt(PopulationVariance(values))
}

// Min returns the minimum value
func Min(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}

// Max returns the maximum value
func Max(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	max := values[0]
	for _, v := range values[1:] {
		if v > max {
			max = v
		}
	}
	return max
}

// Magnitude returns the Euclidean norm of a three-axis reading
func Magnitude(x, y, z float64) float64 {
	return math.Sqrt(x*x + y*y + z*z)
}
