package state

import "github.com/elys-network/avs/internal/types"

// Store exposes the package-level functions through a value so that callers can depend on an
// interface and be tested without a database.
type Store struct{}

func (Store) SaveRoundResult(record types.RoundRecord) (int64, error) {
	return SaveRoundResult(record)
}

func (Store) GetRecentRounds(limit int) ([]types.RoundRecord, error) {
	return GetRecentRounds(limit)
}

func (Store) GetRoundByID(roundID string) (*types.RoundRecord, error) {
	return GetRoundByID(roundID)
}

func (Store) GetLatestRound() (*types.RoundRecord, error) {
	return GetLatestRound()
}

func (Store) IncrementRoundNumber() (int, error) {
	return IncrementRoundNumber()
}

func (Store) UpdateTrustScores(result types.RoundResult, alpha float64) error {
	return UpdateTrustScores(result, alpha)
}

func (Store) GetTrustScores() ([]types.TrustScore, error) {
	return GetTrustScores()
}

func (Store) GetActiveScoringParametersID(configName string) (*int64, error) {
	return GetActiveScoringParametersID(configName)
}

func (Store) LoadActiveScoringParameters(configName string) (*types.ScoringParameters, error) {
	return LoadActiveScoringParameters(configName)
}

func (Store) Ping() error {
	return TestDBConnection()
}
