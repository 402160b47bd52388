/*

This file contains the types for scoring rounds, and the configurable parameters of the scoring engine.

*/

package types

import (
	"time"

	"cosmossdk.io/math"
)

// ScoringParameters holds the thresholds used by one scoring round.
// It is passed explicitly into every round so that a round is reproducible from its inputs alone.
type ScoringParameters struct {
	AllocationThreshold           math.Int `json:"allocation_threshold"`            // Minimum amount every resource must receive (base units).
	AllocationSimilarityThreshold float64  `json:"allocation_similarity_threshold"` // Allocation distance at or below which two answers are "the same".
	APYSimilarityThreshold        float64  `json:"apy_similarity_threshold"`        // APY distance at or below which two answers are "the same".
}

// RoundResult is the output of one scoring round. All slices are index-aligned to Participants.
type RoundResult struct {
	Participants []ParticipantID `json:"participants"`
	Valid        []bool          `json:"valid"` // Allocation present and accepted by the validator
	APYs         []math.Int      `json:"apys"`  // Fixed point, 1e18 == 100%; zero for invalid participants
	Penalties    PenaltyMap      `json:"penalties"`
	BaseRewards  []float64       `json:"base_rewards"` // Normalized yields before plagiarism adjustment
	Rewards      []float64       `json:"rewards"`      // Final reward vector in [0,1]
}

// RewardFor returns the final reward of a participant, and false if it was not part of the round.
func (r RoundResult) RewardFor(id ParticipantID) (float64, bool) {
	for i, p := range r.Participants {
		if p == id {
			return r.Rewards[i], true
		}
	}
	return 0, false
}

// RoundRecord is a scored round as persisted and served by the dashboard.
type RoundRecord struct {
	RecordID        int64                 `json:"record_id,omitempty"` // Auto-incremented by DB
	RoundID         string                `json:"round_id"`            // UUID used to trace logs across the round
	RoundNumber     int                   `json:"round_number"`
	Timestamp       time.Time             `json:"timestamp"`
	ScoringParamsID *int64                `json:"scoring_params_id,omitempty"`
	TotalAssets     string                `json:"total_assets"` // sdk.Coin string form
	ResourceCount   int                   `json:"resource_count"`
	ElapsedSeconds  int64                 `json:"elapsed_seconds"`
	Result          RoundResult           `json:"result"`
	Responses       []ParticipantResponse `json:"responses"`
}

// TrustScore is a participant's exponential moving average of final rewards across rounds.
type TrustScore struct {
	ParticipantID ParticipantID `json:"participant_id"`
	Score         float64       `json:"score"`
	Rounds        int           `json:"rounds"` // Rounds the participant has been scored in
	UpdatedAt     time.Time     `json:"updated_at"`
}
