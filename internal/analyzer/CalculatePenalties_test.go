package analyzer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/elys-network/avs/internal/types"
)

func symmetric(pairs map[[2]types.ParticipantID]float64) types.SimilarityMatrix {
	matrix := types.SimilarityMatrix{}
	for pair, d := range pairs {
		a, b := pair[0], pair[1]
		if matrix[a] == nil {
			matrix[a] = map[types.ParticipantID]float64{}
		}
		if matrix[b] == nil {
			matrix[b] = map[types.ParticipantID]float64{}
		}
		matrix[a][b] = d
		matrix[b][a] = d
	}
	return matrix
}

func TestCalculatePenaltiesSlowerCopierIsPenalized(t *testing.T) {
	sim := symmetric(map[[2]types.ParticipantID]float64{
		{"1", "2"}: 0.05,
		{"1", "3"}: 0.2,
		{"2", "3"}: 0.1,
	})
	latencies := map[types.ParticipantID]float64{"1": 1.0, "2": 2.0, "3": 3.0}

	penalties := CalculatePenalties(sim, sim, latencies, 0.2, 0.1)

	assert.Equal(t, types.PenaltyMap{"1": 0, "2": 1, "3": 1}, penalties)
}

func TestCalculatePenalties(t *testing.T) {
	sim := symmetric(map[[2]types.ParticipantID]float64{
		{"a", "b"}: 0,
		{"a", "c"}: 0,
		{"b", "c"}: 0,
	})

	tests := []struct {
		name      string
		latencies map[types.ParticipantID]float64
		want      types.PenaltyMap
	}{
		{
			name:      "ordered latencies",
			latencies: map[types.ParticipantID]float64{"a": 1, "b": 2, "c": 3},
			want:      types.PenaltyMap{"a": 0, "b": 1, "c": 2},
		},
		{
			name:      "equal latencies penalize both",
			latencies: map[types.ParticipantID]float64{"a": 1, "b": 1, "c": 1},
			want:      types.PenaltyMap{"a": 2, "b": 2, "c": 2},
		},
		{
			name:      "missing latency is the slowest",
			latencies: map[types.ParticipantID]float64{"a": 5, "b": 1},
			want:      types.PenaltyMap{"a": 1, "b": 0, "c": 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			penalties := CalculatePenalties(sim, sim, tt.latencies, 0.1, 0.1)
			assert.Equal(t, tt.want, penalties)
			for id, p := range penalties {
				assert.GreaterOrEqual(t, p, 0, id)
				assert.LessOrEqual(t, p, len(penalties)-1, id)
			}
		})
	}
}

func TestCalculatePenaltiesRequiresBothMatrices(t *testing.T) {
	alloc := symmetric(map[[2]types.ParticipantID]float64{{"a", "b"}: 0})
	apy := symmetric(map[[2]types.ParticipantID]float64{{"a", "b"}: 0.5})
	latencies := map[types.ParticipantID]float64{"a": 1, "b": 2}

	assert.Equal(t, types.PenaltyMap{"a": 0, "b": 0}, CalculatePenalties(alloc, apy, latencies, 0.1, 0.1))
	assert.Equal(t, types.PenaltyMap{"a": 0, "b": 1}, CalculatePenalties(alloc, apy, latencies, 0.1, 0.5))
}

func TestCalculatePenaltiesMissingEntriesAreNeverSimilar(t *testing.T) {
	alloc := symmetric(map[[2]types.ParticipantID]float64{{"a", "b"}: 0})
	apy := types.SimilarityMatrix{"a": {}, "b": {}}

	penalties := CalculatePenalties(alloc, apy, nil, 1, 1)
	assert.Equal(t, types.PenaltyMap{"a": 0, "b": 0}, penalties)
}

func TestCalculatePenaltiesMonotoneInThresholds(t *testing.T) {
	records := similarityRecords()
	alloc := AllocationSimilarityMatrix(records, testChallenge())
	apy := APYSimilarityMatrix(records)
	latencies := map[types.ParticipantID]float64{"1": 3, "2": 2, "3": 1, "4": 4}

	thresholds := []float64{0, 1e-4, 0.1, 0.4, 0.5, 1, 2}
	for i := 1; i < len(thresholds); i++ {
		lower, higher := thresholds[i-1], thresholds[i]
		t.Run(fmt.Sprintf("%g_to_%g", lower, higher), func(t *testing.T) {
			strict := CalculatePenalties(alloc, apy, latencies, lower, lower)
			loose := CalculatePenalties(alloc, apy, latencies, higher, higher)
			for id := range strict {
				assert.LessOrEqual(t, strict[id], loose[id], id)
			}
		})
	}
}
