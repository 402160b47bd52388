/*

This file contains the default parameters for the scoring service.

The thresholds decide when two participants are treated as copies of each other, so they are kept
tight: a false plagiarism flag costs an honest participant its whole reward.

*/

package config

import (
	"time"

	"cosmossdk.io/math"

	"github.com/elys-network/avs/internal/types"
)

// DefaultScoringParameters provides the baseline thresholds of a scoring round.
// These values are used if no active parameters are found in the database during initialization.
var DefaultScoringParameters = types.ScoringParameters{
	AllocationThreshold: math.ZeroInt(), // No floor beyond each resource's own shortfall.
	// Rationale: A global floor forces dust into every venue. The shortfall rule already
	// protects withdrawals, which is the only hard constraint of an allocation.

	AllocationSimilarityThreshold: 1e-4, // Allocations within 0.01% of the total assets are identical.
	// Rationale: Independent allocators converge on similar answers but rarely to the base unit.
	// 1e-4 of the total catches copies that were rounded or nudged without flagging near misses.

	APYSimilarityThreshold: 1e-4, // Yields within 0.01% (relative) of each other are identical.
	// Rationale: Both distances must be under threshold for a flag, so this one can be as strict.
}

const (
	// DefaultQueryTimeout bounds one participant query. A participant that does not answer in time
	// is treated as missing for the round.
	DefaultQueryTimeout = 10 * time.Second

	// DefaultMaxInFlightQueries caps concurrent participant queries.
	DefaultMaxInFlightQueries = 32

	// DefaultRoundInterval is the time between two scoring rounds.
	DefaultRoundInterval = 10 * time.Minute

	// DefaultScoringWindow is the wait between dispatch and scoring. With the synthetic market the
	// virtual clock provides the elapsed time, so no wall-clock wait is needed.
	DefaultScoringWindow = time.Duration(0)

	// DefaultTrustAlpha is the weight of the latest round in the trust score moving average.
	// Rationale: 0.1 keeps roughly the last ten rounds relevant, so one lucky round does not
	// outweigh a history of copying.
	DefaultTrustAlpha = 0.1

	// DefaultSimSeed seeds the synthetic market.
	DefaultSimSeed = 1

	// DefaultSimStep is how far the synthetic market's clock advances per snapshot.
	DefaultSimStep = 7 * 24 * time.Hour

	// DefaultScoringConfigName and DefaultScoringParametersVersion identify the parameter set
	// stored in the database.
	DefaultScoringConfigName        = "default_avs_scoring"
	DefaultScoringParametersVersion = 1

	DefaultWebPort           = "8080"
	DefaultParticipantListen = ":9000"
)
