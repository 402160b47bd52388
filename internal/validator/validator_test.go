package validator

import (
	"context"
	"errors"
	"testing"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/avs/internal/analyzer"
	"github.com/elys-network/avs/internal/planner"
	"github.com/elys-network/avs/internal/resources"
	"github.com/elys-network/avs/internal/simulations"
	"github.com/elys-network/avs/internal/types"
)

// fakeDispatcher answers for three participants: an honest allocator, a slower copy of it, and
// one that never answers.
type fakeDispatcher struct {
	calls     int
	roundIDs  []string
	challenge types.Challenge
	err       error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, roundID string, challenge types.Challenge) ([]types.ParticipantResponse, error) {
	d.calls++
	d.roundIDs = append(d.roundIDs, roundID)
	d.challenge = challenge
	if d.err != nil {
		return nil, d.err
	}

	allocation, err := planner.NaiveAllocation(challenge, math.ZeroInt())
	if err != nil {
		allocation = nil
	}
	return []types.ParticipantResponse{
		{ID: "honest", Allocation: allocation, RoundTripTime: 0.1},
		{ID: "copycat", Allocation: allocation, RoundTripTime: 0.2},
		{ID: "silent", RoundTripTime: 10},
	}, nil
}

type fakeStore struct {
	round      int
	paramsID   *int64
	saved      []types.RoundRecord
	trustCalls int
	alpha      float64
	saveErr    error
}

func (s *fakeStore) IncrementRoundNumber() (int, error) {
	s.round++
	return s.round, nil
}

func (s *fakeStore) GetActiveScoringParametersID(string) (*int64, error) {
	return s.paramsID, nil
}

func (s *fakeStore) SaveRoundResult(record types.RoundRecord) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	s.saved = append(s.saved, record)
	return int64(len(s.saved)), nil
}

func (s *fakeStore) UpdateTrustScores(_ types.RoundResult, alpha float64) error {
	s.trustCalls++
	s.alpha = alpha
	return nil
}

func testParams() types.ScoringParameters {
	return types.ScoringParameters{
		AllocationThreshold:           math.ZeroInt(),
		AllocationSimilarityThreshold: 1e-4,
		APYSimilarityThreshold:        1e-4,
	}
}

func newTestValidator(t *testing.T, dispatcher Dispatcher, store RoundStore) (*Validator, *simulations.Market) {
	t.Helper()
	market := simulations.NewMarket(simulations.DefaultMarketConfig(11))
	cfg := Config{
		Challenges: market,
		Provider:   market,
		Dispatcher: dispatcher,
		Params:     testParams(),
		ConfigName: "test",
		TrustAlpha: 0.1,
	}
	if store != nil {
		cfg.Store = store
	}
	v, err := NewValidator(cfg)
	require.NoError(t, err)
	return v, market
}

func TestRunRoundScoresParticipants(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	v, _ := newTestValidator(t, dispatcher, nil)

	record, err := v.RunRound(context.Background())
	require.NoError(t, err)
	require.NotNil(t, record)

	_, err = uuid.Parse(record.RoundID)
	assert.NoError(t, err)
	assert.Equal(t, []string{record.RoundID}, dispatcher.roundIDs)
	assert.Equal(t, 1, record.RoundNumber)
	assert.Equal(t, int64((7 * 24 * time.Hour).Seconds()), record.ElapsedSeconds)
	assert.Equal(t, len(dispatcher.challenge.Resources), record.ResourceCount)

	result := record.Result
	assert.Equal(t, []types.ParticipantID{"honest", "copycat", "silent"}, result.Participants)
	assert.Equal(t, []bool{true, true, false}, result.Valid)
	assert.True(t, result.APYs[0].IsPositive())
	assert.Equal(t, result.APYs[0].String(), result.APYs[1].String())

	assert.Equal(t, 0, result.Penalties["honest"])
	assert.Equal(t, 1, result.Penalties["copycat"])
	assert.InDelta(t, 1.0, result.Rewards[0], 1e-12)
	assert.InDelta(t, 0.0, result.Rewards[1], 1e-12)
	assert.InDelta(t, 0.0, result.Rewards[2], 1e-12)
	assert.NoError(t, analyzer.ValidateRewards(result.Rewards))
}

func TestRunRoundPersists(t *testing.T) {
	paramsID := int64(4)
	store := &fakeStore{round: 41, paramsID: &paramsID}
	v, _ := newTestValidator(t, &fakeDispatcher{}, store)

	record, err := v.RunRound(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 42, record.RoundNumber)
	assert.Equal(t, int64(1), record.RecordID)
	require.Len(t, store.saved, 1)
	assert.Equal(t, record.RoundID, store.saved[0].RoundID)
	assert.Equal(t, &paramsID, store.saved[0].ScoringParamsID)
	assert.Equal(t, 1, store.trustCalls)
	assert.Equal(t, 0.1, store.alpha)
}

func TestRunRoundPersistFailureStillReturnsRecord(t *testing.T) {
	store := &fakeStore{saveErr: errors.New("disk full")}
	v, _ := newTestValidator(t, &fakeDispatcher{}, store)

	record, err := v.RunRound(context.Background())
	assert.ErrorIs(t, err, ErrPersistFailed)
	require.NotNil(t, record)
	assert.Len(t, record.Result.Rewards, 3)
	assert.Equal(t, 1, store.trustCalls)
}

func TestRunRoundDispatchFailure(t *testing.T) {
	v, _ := newTestValidator(t, &fakeDispatcher{err: context.DeadlineExceeded}, nil)

	record, err := v.RunRound(context.Background())
	assert.Nil(t, record)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunRoundRejectsZeroElapsed(t *testing.T) {
	snapshot := resources.Snapshot{
		Resources: map[types.ResourceKey]types.Resource{
			"savings": {Key: "savings", Kind: types.ResourceFixedRate, SupplyRate: math.LegacyMustNewDecFromStr("0.05"), YieldIndex: math.NewIntWithDecimal(1, 18)},
		},
		Timestamp: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	provider := resources.NewStaticProvider(snapshot)
	source := staticSource{challenge: snapshot.Challenge(sdk.NewCoin("uusdc", math.NewInt(1_000_000)))}

	v, err := NewValidator(Config{
		Challenges: source,
		Provider:   provider,
		Dispatcher: &fakeDispatcher{},
		Params:     testParams(),
	})
	require.NoError(t, err)

	_, err = v.RunRound(context.Background())
	assert.ErrorIs(t, err, analyzer.ErrInvalidElapsed)
}

type staticSource struct {
	challenge types.Challenge
}

func (s staticSource) NewChallenge() (types.Challenge, error) {
	return s.challenge, nil
}

func TestNewValidatorValidation(t *testing.T) {
	market := simulations.NewMarket(simulations.DefaultMarketConfig(1))
	base := Config{Challenges: market, Provider: market, Dispatcher: &fakeDispatcher{}, Params: testParams()}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing challenges", func(c *Config) { c.Challenges = nil }},
		{"missing provider", func(c *Config) { c.Provider = nil }},
		{"missing dispatcher", func(c *Config) { c.Dispatcher = nil }},
		{"negative window", func(c *Config) { c.ScoringWindow = -time.Second }},
		{"bad params", func(c *Config) { c.Params.APYSimilarityThreshold = -1 }},
		{"store without config name", func(c *Config) { c.Store = &fakeStore{}; c.TrustAlpha = 0.1 }},
		{"store with bad alpha", func(c *Config) { c.Store = &fakeStore{}; c.ConfigName = "x"; c.TrustAlpha = 2 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewValidator(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRunLoopStopsOnCancel(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	v, _ := newTestValidator(t, dispatcher, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		v.RunLoop(ctx, time.Hour)
		close(done)
	}()

	require.Eventually(t, func() bool { return v.RoundsScored() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("RunLoop did not stop after cancellation")
	}
}
