/*

This file contains the reward normalizer. Yields are heavy tailed, so they are compressed
before being rescaled into [0,1].

*/

package analyzer

import (
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/utils"
)

var normalizeLogger = logger.GetForComponent("reward_normalizer")

// NormalizeExp maps fixed-point yields (1e18 == 100%) to [0,1].
// Values are z-scored with the population standard deviation, passed through asinh so one
// extreme yield cannot flatten everyone else, then min-max rescaled. The mapping is monotone.
// Fewer than two values, zero variance or a degenerate range yield all zeros.
// Unset or unconvertible values are treated as a 0% yield.
func NormalizeExp(values []sdkmath.Int) []float64 {
	out := make([]float64, len(values))
	if len(values) < 2 {
		return out
	}

	floats := make([]float64, len(values))
	for i, v := range values {
		if v.IsNil() {
			continue
		}
		f, err := utils.FixedPointToFloat64(v)
		if err != nil {
			normalizeLogger.Warn().
				Err(err).
				Int("index", i).
				Str("value", v.String()).
				Msg("Yield could not be converted, treating it as zero")
			continue
		}
		floats[i] = f
	}

	mean, stdDev, err := MeanAndStdDev(floats)
	if err != nil || stdDev == 0 {
		normalizeLogger.Debug().
			Int("count", len(values)).
			Float64("stdDev", stdDev).
			Msg("No dispersion across yields, rewards are all zero")
		return out
	}

	compressed := make([]float64, len(floats))
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, f := range floats {
		c := math.Asinh((f - mean) / stdDev)
		compressed[i] = c
		lo = math.Min(lo, c)
		hi = math.Max(hi, c)
	}

	spread := hi - lo
	if spread <= 0 || math.IsNaN(spread) || math.IsInf(spread, 0) {
		return out
	}

	for i, c := range compressed {
		v := (c - lo) / spread
		if math.IsNaN(v) {
			v = 0
		}
		out[i] = math.Min(1, math.Max(0, v))
	}

	normalizeLogger.Debug().
		Int("count", len(values)).
		Float64("mean", mean).
		Float64("stdDev", stdDev).
		Float64("compressedMin", lo).
		Float64("compressedMax", hi).
		Msg("Yields normalized")

	return out
}
