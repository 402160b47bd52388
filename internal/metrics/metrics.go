package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/elys-network/avs/internal/types"
)

// Response outcomes
const (
	OutcomeValid   = "valid"
	OutcomeInvalid = "invalid"
	OutcomeMissing = "missing"
)

// Scoring round metrics
var (
	roundsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_rounds_total",
			Help: "Scoring rounds by result (scored, or the stage that failed)",
		},
		[]string{"result"},
	)

	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avs_participant_responses_total",
			Help: "Participant responses by outcome (valid, invalid, missing)",
		},
		[]string{"outcome"},
	)

	penaltiesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avs_penalties_total",
			Help: "Plagiarism penalties assigned across all rounds",
		},
	)

	rewardDistribution = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avs_reward",
			Help:    "Final rewards of scored participants (0.0-1.0)",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
	)

	roundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "avs_round_duration_seconds",
			Help:    "Wall-clock duration of a round from challenge to persisted result",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	participantReward = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "avs_participant_reward",
			Help: "Final reward of each participant in the latest round (0.0-1.0)",
		},
		[]string{"participant"},
	)

	participantLatency = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "avs_participant_latency_seconds",
			Help: "Round-trip time of each participant in the latest round",
		},
		[]string{"participant"},
	)
)

// RecordRound publishes a scored round.
func RecordRound(result types.RoundResult, responses []types.ParticipantResponse, duration time.Duration) {
	roundsTotal.WithLabelValues("scored").Inc()
	roundDuration.Observe(duration.Seconds())

	for i, response := range responses {
		switch {
		case response.Allocation == nil:
			responsesTotal.WithLabelValues(OutcomeMissing).Inc()
		case i < len(result.Valid) && result.Valid[i]:
			responsesTotal.WithLabelValues(OutcomeValid).Inc()
		default:
			responsesTotal.WithLabelValues(OutcomeInvalid).Inc()
		}
		participantLatency.WithLabelValues(string(response.ID)).Set(response.RoundTripTime)
	}

	for _, p := range result.Penalties {
		penaltiesTotal.Add(float64(p))
	}

	for i, id := range result.Participants {
		if i >= len(result.Rewards) {
			break
		}
		rewardDistribution.Observe(result.Rewards[i])
		participantReward.WithLabelValues(string(id)).Set(result.Rewards[i])
	}
}

// RecordRoundFailure counts a round that stopped at stage.
func RecordRoundFailure(stage string) {
	roundsTotal.WithLabelValues(stage).Inc()
}
