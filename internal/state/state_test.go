package state

import (
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/avs/internal/types"
)

func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	previous := DB
	DB = db
	t.Cleanup(func() {
		DB = previous
		db.Close()
	})
	return mock
}

func TestStoreFunctionsRequireDB(t *testing.T) {
	previous := DB
	DB = nil
	defer func() { DB = previous }()

	_, err := SaveRoundResult(types.RoundRecord{})
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = GetRecentRounds(5)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = IncrementRoundNumber()
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.ErrorIs(t, UpdateTrustScores(types.RoundResult{}, 0.1), ErrDBNotInitialized)
	assert.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
	assert.ErrorIs(t, TestDBConnection(), ErrDBNotInitialized)
}

func TestEnsureSchema(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS scoring_parameters")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveScoringParametersDeactivatesPrevious(t *testing.T) {
	mock := newMockDB(t)
	params := types.ScoringParameters{
		AllocationThreshold:           math.NewInt(1_000_000),
		AllocationSimilarityThreshold: 1e-4,
		APYSimilarityThreshold:        1e-4,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE scoring_parameters SET is_active = FALSE")).
		WithArgs("default").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO scoring_parameters")).
		WithArgs(2, "default", true, sqlmock.AnyArg(), sqlmock.AnyArg(), "1000000", 1e-4, 1e-4).
		WillReturnRows(sqlmock.NewRows([]string{"params_id"}).AddRow(7))
	mock.ExpectCommit()

	id, err := SaveScoringParameters(params, "default", 2, true)
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveScoringParametersRollsBackOnFailure(t *testing.T) {
	mock := newMockDB(t)
	params := types.ScoringParameters{AllocationThreshold: math.ZeroInt()}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO scoring_parameters")).
		WillReturnError(errors.New("unique violation"))
	mock.ExpectRollback()

	_, err := SaveScoringParameters(params, "default", 1, false)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadActiveScoringParameters(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scoring_parameters")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"allocation_threshold", "allocation_similarity_threshold", "apy_similarity_threshold"}).
			AddRow("1000000000000000000000000000000", 0.002, 0.003))

	params, err := LoadActiveScoringParameters("default")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000000000000000000", params.AllocationThreshold.String())
	assert.Equal(t, 0.002, params.AllocationSimilarityThreshold)
	assert.Equal(t, 0.003, params.APYSimilarityThreshold)
}

func TestLoadActiveScoringParametersMissing(t *testing.T) {
	mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM scoring_parameters")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"allocation_threshold", "allocation_similarity_threshold", "apy_similarity_threshold"}))

	_, err := LoadActiveScoringParameters("default")
	assert.ErrorIs(t, err, ErrNoActiveParameters)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT params_id")).
		WithArgs("default").
		WillReturnRows(sqlmock.NewRows([]string{"params_id"}))

	id, err := GetActiveScoringParametersID("default")
	require.NoError(t, err)
	assert.Nil(t, id)
}

func TestRoundCounter(t *testing.T) {
	mock := newMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_round FROM round_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_round"}).AddRow(4))
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE round_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_round"}).AddRow(5))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE round_counter")).
		WithArgs(0).
		WillReturnResult(sqlmock.NewResult(0, 1))

	current, err := GetCurrentRoundNumber()
	require.NoError(t, err)
	assert.Equal(t, 4, current)

	next, err := IncrementRoundNumber()
	require.NoError(t, err)
	assert.Equal(t, 5, next)

	require.NoError(t, ResetRoundNumber(0))
	assert.Error(t, ResetRoundNumber(-1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sampleRecord() types.RoundRecord {
	paramsID := int64(3)
	return types.RoundRecord{
		RoundID:         "1b4e28ba-2fa1-11d2-883f-0016d3cca427",
		RoundNumber:     12,
		Timestamp:       time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		ScoringParamsID: &paramsID,
		TotalAssets:     "1000000uusdc",
		ResourceCount:   2,
		ElapsedSeconds:  604800,
		Result: types.RoundResult{
			Participants: []types.ParticipantID{"alice", "bob"},
			Valid:        []bool{true, false},
			APYs:         []math.Int{math.NewInt(50_000_000_000_000_000), math.ZeroInt()},
			Penalties:    types.PenaltyMap{"alice": 0, "bob": 0},
			BaseRewards:  []float64{1, 0},
			Rewards:      []float64{1, 0},
		},
		Responses: []types.ParticipantResponse{
			{ID: "alice", Allocation: types.Allocation{"0xa": math.NewInt(600_000)}, RoundTripTime: 0.2},
			{ID: "bob", RoundTripTime: 10},
		},
	}
}

func TestSaveRoundResult(t *testing.T) {
	mock := newMockDB(t)
	record := sampleRecord()

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO round_results")).
		WithArgs(record.RoundID, 12, record.Timestamp, sqlmock.AnyArg(), "1000000uusdc", 2, int64(604800),
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"record_id"}).AddRow(42))

	id, err := SaveRoundResult(record)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func roundRows(t *testing.T, records ...types.RoundRecord) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"record_id", "round_id", "round_number", "round_timestamp", "scoring_params_id",
		"total_assets", "resource_count", "elapsed_seconds", "result", "responses",
	})
	for i, r := range records {
		result, err := json.Marshal(r.Result)
		require.NoError(t, err)
		responses, err := json.Marshal(r.Responses)
		require.NoError(t, err)
		var paramsID any
		if r.ScoringParamsID != nil {
			paramsID = *r.ScoringParamsID
		}
		rows.AddRow(int64(i+1), r.RoundID, r.RoundNumber, r.Timestamp, paramsID,
			r.TotalAssets, r.ResourceCount, r.ElapsedSeconds, result, responses)
	}
	return rows
}

func TestGetRoundByID(t *testing.T) {
	mock := newMockDB(t)
	record := sampleRecord()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE round_id = $1")).
		WithArgs(record.RoundID).
		WillReturnRows(roundRows(t, record))

	got, err := GetRoundByID(record.RoundID)
	require.NoError(t, err)
	assert.Equal(t, record.RoundID, got.RoundID)
	require.NotNil(t, got.ScoringParamsID)
	assert.Equal(t, int64(3), *got.ScoringParamsID)
	assert.Equal(t, record.Result.Participants, got.Result.Participants)
	assert.Equal(t, record.Result.Rewards, got.Result.Rewards)
	assert.Equal(t, "50000000000000000", got.Result.APYs[0].String())
	assert.Nil(t, got.Responses[1].Allocation)
	assert.Equal(t, "600000", got.Responses[0].Allocation["0xa"].String())

	mock.ExpectQuery(regexp.QuoteMeta("WHERE round_id = $1")).
		WithArgs("missing").
		WillReturnRows(roundRows(t))

	_, err = GetRoundByID("missing")
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestGetRecentRoundsClampsLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, 10},
		{"in range", 25, 25},
		{"capped", 1000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := newMockDB(t)
			mock.ExpectQuery(regexp.QuoteMeta("LIMIT $1")).
				WithArgs(tt.want).
				WillReturnRows(roundRows(t, sampleRecord()))

			records, err := GetRecentRounds(tt.limit)
			require.NoError(t, err)
			assert.Len(t, records, 1)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUpdateTrustScores(t *testing.T) {
	mock := newMockDB(t)
	result := types.RoundResult{
		Participants: []types.ParticipantID{"alice", "bob"},
		Rewards:      []float64{1, 0.5},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trust_scores")).
		WithArgs("alice", 0.1, 1.0).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trust_scores")).
		WithArgs("bob", 0.1, 0.5).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, UpdateTrustScores(result, 0.1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateTrustScoresRejectsBadInput(t *testing.T) {
	newMockDB(t)

	assert.Error(t, UpdateTrustScores(types.RoundResult{}, 0))
	assert.Error(t, UpdateTrustScores(types.RoundResult{}, 1.5))
	assert.Error(t, UpdateTrustScores(types.RoundResult{
		Participants: []types.ParticipantID{"alice"},
	}, 0.1))
}

func TestGetTrustScores(t *testing.T) {
	mock := newMockDB(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("FROM trust_scores")).
		WillReturnRows(sqlmock.NewRows([]string{"participant_id", "score", "rounds", "updated_at"}).
			AddRow("alice", 0.19, 2, now).
			AddRow("bob", 0.05, 1, now))

	scores, err := GetTrustScores()
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, types.ParticipantID("alice"), scores[0].ParticipantID)
	assert.Equal(t, 0.19, scores[0].Score)
	assert.Equal(t, 2, scores[0].Rounds)
}
