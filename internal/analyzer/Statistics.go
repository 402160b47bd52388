package analyzer

import (
	"errors"
	"math"
	"sort"

	"github.com/elys-network/avs/internal/types"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate a dispersion (need at least 2 points).
var ErrInsufficientData = errors.New("insufficient data points to calculate dispersion")

// ErrNonFiniteValue is returned when an intermediate statistic becomes NaN or Inf.
var ErrNonFiniteValue = errors.New("value is not finite")

// MeanAndStdDev returns the mean and the population standard deviation (N, not N-1) of values.
func MeanAndStdDev(values []float64) (float64, float64, error) {
	n := len(values)
	if n < 2 {
		return 0, 0, ErrInsufficientData
	}

	// 1. Calculate the mean (average)
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(n)

	// 2. Calculate sum of squared differences from the mean
	var sumSqDiff float64
	for _, v := range values {
		sumSqDiff += math.Pow(v-mean, 2)
	}

	// 3. Population variance, then standard deviation
	stdDev := math.Sqrt(sumSqDiff / float64(n))

	if math.IsNaN(mean) || math.IsInf(mean, 0) || math.IsNaN(stdDev) || math.IsInf(stdDev, 0) {
		return 0, 0, ErrNonFiniteValue
	}
	return mean, stdDev, nil
}

func sortKeys(keys []types.ResourceKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}

func sortParticipantIDs(ids []types.ParticipantID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
