package analyzer

import (
	"errors"
	"math"

	"github.com/elys-network/avs/internal/types"
)

var ErrInvalidScoringParameters = errors.New("invalid scoring parameters")

// ValidateScoringParameters checks that the round parameters are usable.
func ValidateScoringParameters(params types.ScoringParameters) error {
	if params.AllocationThreshold.IsNil() {
		return errors.New("AllocationThreshold must be set")
	}
	if params.AllocationThreshold.IsNegative() {
		return errors.New("AllocationThreshold cannot be negative")
	}

	// Validate threshold values are finite and non-negative
	thresholds := []struct {
		value float64
		name  string
	}{
		{params.AllocationSimilarityThreshold, "AllocationSimilarityThreshold"},
		{params.APYSimilarityThreshold, "APYSimilarityThreshold"},
	}

	for _, threshold := range thresholds {
		if math.IsNaN(threshold.value) || math.IsInf(threshold.value, 0) {
			return errors.New(threshold.name + " must be finite")
		}
		if threshold.value < 0 {
			return errors.New(threshold.name + " cannot be negative")
		}
	}

	return nil
}
