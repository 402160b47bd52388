/*

This file contains the round pipeline: it turns one round's challenge and collected responses
into the final reward vector.

Validate -> Yield -> Normalize -> Plagiarism adjustment -> Boundedness check

*/

package analyzer

import (
	"errors"
	"fmt"

	"cosmossdk.io/math"

	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/types"
)

var (
	ErrInvalidRound         = errors.New("invalid round input")
	ErrDuplicateParticipant = errors.New("participant appears more than once")
)

var scoreLogger = logger.GetForComponent("round_scorer")

// RoundInput is everything one scoring round depends on. Responses define the participant order.
type RoundInput struct {
	Challenge      types.Challenge                `json:"challenge"`       // Exit snapshot (after the scoring window)
	Responses      []types.ParticipantResponse    `json:"responses"`       // One per queried participant
	EntryIndex     map[types.ResourceKey]math.Int `json:"entry_index"`     // Yield indices when the challenge was sent
	ElapsedSeconds int64                          `json:"elapsed_seconds"` // Length of the scoring window
}

// ScoreRound scores a round. Same input and parameters always give the same result.
// Invalid or missing allocations stay in the round with a 0% yield, a reward of 0 and no
// allocation record, so they are never flagged as copies. Participant IDs must be unique.
func ScoreRound(input RoundInput, params types.ScoringParameters) (types.RoundResult, error) {
	if err := ValidateScoringParameters(params); err != nil {
		return types.RoundResult{}, errors.Join(ErrInvalidScoringParameters, err)
	}
	if input.ElapsedSeconds <= 0 {
		return types.RoundResult{}, errors.Join(ErrInvalidRound, fmt.Errorf("%w: got %d", ErrInvalidElapsed, input.ElapsedSeconds))
	}
	if err := checkParticipantIDs(input.Responses); err != nil {
		return types.RoundResult{}, errors.Join(ErrInvalidRound, err)
	}

	n := len(input.Responses)
	result := types.RoundResult{
		Participants: make([]types.ParticipantID, n),
		Valid:        make([]bool, n),
		APYs:         make([]math.Int, n),
	}
	records := make([]types.ParticipantRecord, n)

	for i, response := range input.Responses {
		result.Participants[i] = response.ID
		result.APYs[i] = math.ZeroInt()
		records[i] = types.ParticipantRecord{
			ID:      response.ID,
			Latency: response.RoundTripTime,
		}

		if !CheckAllocations(input.Challenge, response.Allocation, params.AllocationThreshold) {
			scoreLogger.Debug().
				Str("participant", string(response.ID)).
				Bool("answered", response.Allocation != nil).
				Msg("Participant treated as missing: allocation invalid")
			continue
		}

		apy, err := AnnualizedYieldPct(response.Allocation, input.Challenge, input.ElapsedSeconds, input.EntryIndex)
		if err != nil {
			if errors.Is(err, ErrEmptyInput) {
				scoreLogger.Debug().
					Str("participant", string(response.ID)).
					Err(err).
					Msg("Participant treated as missing: no yield")
				continue
			}
			scoreLogger.Error().
				Str("participant", string(response.ID)).
				Err(err).
				Msg("Yield calculation failed")
			return types.RoundResult{}, errors.Join(ErrInvalidRound, err)
		}

		result.Valid[i] = true
		result.APYs[i] = apy
		records[i].APY = apy
		records[i].Allocations = FormatAllocations(response.Allocation, input.Challenge)
	}

	result.BaseRewards = NormalizeExp(result.APYs)
	// A missing yield sits at 0% and would outrank a round of negative yields.
	for i, valid := range result.Valid {
		if !valid {
			result.BaseRewards[i] = 0
		}
	}

	rewards, penalties, err := AdjustRewardsForPlagiarism(result.BaseRewards, records, input.Challenge, params)
	if err != nil {
		return types.RoundResult{}, fmt.Errorf("plagiarism adjustment failed: %w", err)
	}
	if err := ValidateRewards(rewards); err != nil {
		scoreLogger.Error().Err(err).Msg("Final rewards failed the boundedness check")
		return types.RoundResult{}, err
	}

	result.Penalties = penalties
	result.Rewards = rewards

	scoreLogger.Info().
		Int("participants", n).
		Int("valid", countTrue(result.Valid)).
		Int("penalized", countPenalized(penalties)).
		Msg("Round scored")

	return result, nil
}

func checkParticipantIDs(responses []types.ParticipantResponse) error {
	seen := make(map[types.ParticipantID]struct{}, len(responses))
	for i, response := range responses {
		if _, dup := seen[response.ID]; dup {
			return fmt.Errorf("%w: %q at index %d", ErrDuplicateParticipant, response.ID, i)
		}
		seen[response.ID] = struct{}{}
	}
	return nil
}

func countTrue(values []bool) int {
	count := 0
	for _, v := range values {
		if v {
			count++
		}
	}
	return count
}

func countPenalized(penalties types.PenaltyMap) int {
	count := 0
	for _, p := range penalties {
		if p > 0 {
			count++
		}
	}
	return count
}
