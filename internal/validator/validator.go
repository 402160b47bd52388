package validator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/avs/internal/analyzer"
	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/metrics"
	"github.com/elys-network/avs/internal/resources"
	"github.com/elys-network/avs/internal/types"
)

var ErrPersistFailed = errors.New("round scored but not persisted")

// Round stages reported to metrics when a round stops early.
const (
	stageChallenge = "challenge_failed"
	stageSync      = "sync_failed"
	stageDispatch  = "dispatch_failed"
	stageScoring   = "scoring_failed"
	stagePersist   = "persist_failed"
)

// ChallengeSource produces the challenge of a new round.
type ChallengeSource interface {
	NewChallenge() (types.Challenge, error)
}

// Dispatcher sends a challenge to every participant and returns their answers in a fixed order.
type Dispatcher interface {
	Dispatch(ctx context.Context, roundID string, challenge types.Challenge) ([]types.ParticipantResponse, error)
}

// RoundStore persists scored rounds.
type RoundStore interface {
	IncrementRoundNumber() (int, error)
	GetActiveScoringParametersID(configName string) (*int64, error)
	SaveRoundResult(record types.RoundRecord) (int64, error)
	UpdateTrustScores(result types.RoundResult, alpha float64) error
}

// Validator runs scoring rounds: it issues challenges, collects allocations and scores them.
type Validator struct {
	logger     zerolog.Logger
	challenges ChallengeSource
	provider   resources.SnapshotProvider
	dispatcher Dispatcher
	store      RoundStore
	params     types.ScoringParameters

	configName    string
	scoringWindow time.Duration
	trustAlpha    float64

	roundCount atomic.Int64
}

// Config holds the dependencies of a Validator. Store is optional.
type Config struct {
	Challenges    ChallengeSource
	Provider      resources.SnapshotProvider
	Dispatcher    Dispatcher
	Store         RoundStore
	Params        types.ScoringParameters
	ConfigName    string
	ScoringWindow time.Duration // Wall-clock wait between dispatch and the exit snapshot
	TrustAlpha    float64
}

// NewValidator creates a Validator after checking its dependencies and parameters.
func NewValidator(cfg Config) (*Validator, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("validator configuration validation failed: %w", err)
	}

	v := &Validator{
		logger:        logger.GetForComponent("validator"),
		challenges:    cfg.Challenges,
		provider:      cfg.Provider,
		dispatcher:    cfg.Dispatcher,
		store:         cfg.Store,
		params:        cfg.Params,
		configName:    cfg.ConfigName,
		scoringWindow: cfg.ScoringWindow,
		trustAlpha:    cfg.TrustAlpha,
	}

	v.logger.Info().
		Str("configName", v.configName).
		Bool("persistence", v.store != nil).
		Dur("scoringWindow", v.scoringWindow).
		Msg("Validator created")

	return v, nil
}

func validateConfig(cfg Config) error {
	if cfg.Challenges == nil {
		return fmt.Errorf("challenge source cannot be nil")
	}
	if cfg.Provider == nil {
		return fmt.Errorf("snapshot provider cannot be nil")
	}
	if cfg.Dispatcher == nil {
		return fmt.Errorf("dispatcher cannot be nil")
	}
	if cfg.ScoringWindow < 0 {
		return fmt.Errorf("scoring window cannot be negative")
	}
	if cfg.Store != nil {
		if cfg.ConfigName == "" {
			return fmt.Errorf("config name cannot be empty when persistence is enabled")
		}
		if cfg.TrustAlpha <= 0 || cfg.TrustAlpha > 1 {
			return fmt.Errorf("trust alpha must be in (0,1], got %f", cfg.TrustAlpha)
		}
	}
	return analyzer.ValidateScoringParameters(cfg.Params)
}

// RunLoop runs a round immediately and then one per interval until ctx is cancelled.
// A failed round is logged and does not stop the loop.
func (v *Validator) RunLoop(ctx context.Context, interval time.Duration) {
	v.logger.Info().
		Dur("interval", interval).
		Msg("Starting validator loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := v.RunRound(ctx); err != nil {
			v.logger.Error().Err(err).Msg("Round failed")
		}

		select {
		case <-ctx.Done():
			v.logger.Info().Msg("Validator loop stopped due to context cancellation")
			return
		case <-ticker.C:
		}
	}
}

// RunRound executes one complete round:
//
//	challenge -> entry snapshot -> dispatch -> scoring window -> exit snapshot -> score -> persist
//
// A non-nil record is returned whenever the round was scored, even if persisting it failed.
func (v *Validator) RunRound(ctx context.Context) (*types.RoundRecord, error) {
	start := time.Now()

	// Unique round ID for tracing logs across the round and the participants
	roundID := uuid.New().String()
	roundLogger := v.logger.With().Str("round_id", roundID).Logger()
	roundLogger.Info().Msg("--- Starting scoring round ---")

	challenge, err := v.challenges.NewChallenge()
	if err != nil {
		metrics.RecordRoundFailure(stageChallenge)
		return nil, fmt.Errorf("failed to create challenge: %w", err)
	}
	keys := challenge.ResourceKeys()

	entry, err := v.provider.Sync(ctx, keys)
	if err != nil {
		metrics.RecordRoundFailure(stageSync)
		return nil, fmt.Errorf("failed to take entry snapshot: %w", err)
	}
	sent := entry.Challenge(challenge.TotalAssets)

	roundLogger.Info().
		Int("resources", len(keys)).
		Str("totalAssets", sent.TotalAssets.String()).
		Msg("Step 1: Challenge created, dispatching to participants...")

	responses, err := v.dispatcher.Dispatch(ctx, roundID, sent)
	if err != nil {
		metrics.RecordRoundFailure(stageDispatch)
		return nil, fmt.Errorf("failed to dispatch challenge: %w", err)
	}

	if v.scoringWindow > 0 {
		roundLogger.Info().Dur("window", v.scoringWindow).Msg("Step 2: Waiting for the scoring window...")
		select {
		case <-ctx.Done():
			metrics.RecordRoundFailure(stageSync)
			return nil, ctx.Err()
		case <-time.After(v.scoringWindow):
		}
	}

	exit, err := v.provider.Sync(ctx, keys)
	if err != nil {
		metrics.RecordRoundFailure(stageSync)
		return nil, fmt.Errorf("failed to take exit snapshot: %w", err)
	}

	input := analyzer.RoundInput{
		Challenge:      exit.Challenge(challenge.TotalAssets),
		Responses:      responses,
		EntryIndex:     entry.YieldIndices(),
		ElapsedSeconds: int64(exit.Timestamp.Sub(entry.Timestamp) / time.Second),
	}

	roundLogger.Info().Int64("elapsedSeconds", input.ElapsedSeconds).Msg("Step 3: Scoring responses...")
	result, err := analyzer.ScoreRound(input, v.params)
	if err != nil {
		metrics.RecordRoundFailure(stageScoring)
		return nil, fmt.Errorf("failed to score round: %w", err)
	}
	metrics.RecordRound(result, responses, time.Since(start))

	record := &types.RoundRecord{
		RoundID:        roundID,
		Timestamp:      start,
		TotalAssets:    sent.TotalAssets.String(),
		ResourceCount:  len(keys),
		ElapsedSeconds: input.ElapsedSeconds,
		Result:         result,
		Responses:      responses,
	}

	err = v.persist(record, roundLogger)

	roundLogger.Info().
		Int("roundNumber", record.RoundNumber).
		Floats64("rewards", result.Rewards).
		Str("roundDuration", time.Since(start).String()).
		Msg("--- Scoring round completed ---")

	return record, err
}

// RoundsScored returns how many rounds this validator has scored since it was created.
func (v *Validator) RoundsScored() int {
	return int(v.roundCount.Load())
}

// persist numbers the round and, when a store is configured, saves it and updates trust scores.
func (v *Validator) persist(record *types.RoundRecord, roundLogger zerolog.Logger) error {
	record.RoundNumber = int(v.roundCount.Add(1))
	if v.store == nil {
		return nil
	}

	if n, err := v.store.IncrementRoundNumber(); err != nil {
		roundLogger.Error().Err(err).Msg("Failed to increment round number, using local counter")
	} else {
		record.RoundNumber = n
	}

	paramsID, err := v.store.GetActiveScoringParametersID(v.configName)
	if err != nil {
		roundLogger.Error().Err(err).Str("configName", v.configName).Msg("Failed to get active scoring parameters ID")
	}
	record.ScoringParamsID = paramsID

	var errs []error
	if id, err := v.store.SaveRoundResult(*record); err != nil {
		roundLogger.Error().Err(err).Msg("Failed to save round result")
		errs = append(errs, err)
	} else {
		record.RecordID = id
	}
	if err := v.store.UpdateTrustScores(record.Result, v.trustAlpha); err != nil {
		roundLogger.Error().Err(err).Msg("Failed to update trust scores")
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		metrics.RecordRoundFailure(stagePersist)
		return errors.Join(append([]error{ErrPersistFailed}, errs...)...)
	}
	return nil
}
