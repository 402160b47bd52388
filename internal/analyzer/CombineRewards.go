/*

This file contains the reward combiner: it folds plagiarism penalties into the normalized
base rewards and produces the final bounded reward vector.

*/

package analyzer

import (
	"errors"
	"fmt"
	"math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

var (
	ErrLengthMismatch   = errors.New("rewards and penalties have different lengths")
	ErrNonFiniteReward  = errors.New("reward is not finite")
	ErrRewardOutOfRange = errors.New("reward is outside [0,1]")
)

// maxPenaltyScale caps the penalty scale: two penalties always wipe a reward out.
const maxPenaltyScale = 2

var combineLogger = logger.GetForComponent("reward_combiner")

// CombineRewards applies penalties to base rewards:
//
//	final[i] = base[i] * max(0, 1 - penalties[i]/scale), scale = min(max(penalties), 2)
//
// A participant carrying the round's maximum penalty (or at least two) ends at 0, one penalty
// against a scale of two halves the reward, and with no penalties the base rewards pass through.
// NaN or negative base rewards count as 0 and values above 1 are clamped.
func CombineRewards(base []float64, penalties []int) ([]float64, error) {
	if len(base) != len(penalties) {
		return nil, fmt.Errorf("%w: %d rewards, %d penalties", ErrLengthMismatch, len(base), len(penalties))
	}

	maxPenalty := 0
	for _, p := range penalties {
		if p > maxPenalty {
			maxPenalty = p
		}
	}
	scale := float64(min(maxPenalty, maxPenaltyScale))

	final := make([]float64, len(base))
	for i, b := range base {
		b = sanitizeReward(b)
		if scale == 0 || penalties[i] <= 0 {
			final[i] = b
			continue
		}
		factor := math.Max(0, 1-float64(penalties[i])/scale)
		final[i] = b * factor
	}

	combineLogger.Debug().
		Int("participants", len(base)).
		Int("maxPenalty", maxPenalty).
		Floats64("rewards", final).
		Msg("Penalties applied to rewards")

	return final, nil
}

func sanitizeReward(r float64) float64 {
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	if r > 1 {
		return 1
	}
	return r
}

// AdjustRewardsForPlagiarism builds both similarity matrices over records, assigns penalties
// with the thresholds of params and the records' latencies, and combines them with base.
// base must be index-aligned to records.
func AdjustRewardsForPlagiarism(base []float64, records []types.ParticipantRecord, challenge types.Challenge, params types.ScoringParameters) ([]float64, types.PenaltyMap, error) {
	if len(base) != len(records) {
		return nil, nil, fmt.Errorf("%w: %d rewards, %d records", ErrLengthMismatch, len(base), len(records))
	}

	allocSim := AllocationSimilarityMatrix(records, challenge)
	apySim := APYSimilarityMatrix(records)

	latencies := make(map[types.ParticipantID]float64, len(records))
	for _, record := range records {
		latencies[record.ID] = record.Latency
	}

	penaltyMap := CalculatePenalties(allocSim, apySim, latencies, params.AllocationSimilarityThreshold, params.APYSimilarityThreshold)

	penalties := make([]int, len(records))
	for i, record := range records {
		penalties[i] = penaltyMap[record.ID]
	}

	final, err := CombineRewards(base, penalties)
	if err != nil {
		return nil, nil, err
	}
	return final, penaltyMap, nil
}

// ValidateRewards checks that every reward is finite and inside [0,1].
func ValidateRewards(rewards []float64) error {
	var errs []error
	for i, r := range rewards {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			errs = append(errs, fmt.Errorf("%w: index %d is %f", ErrNonFiniteReward, i, r))
			continue
		}
		if r < 0 || r > 1 {
			errs = append(errs, fmt.Errorf("%w: index %d is %f", ErrRewardOutOfRange, i, r))
		}
	}
	return errors.Join(errs...)
}
