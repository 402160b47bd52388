/*

This file contains the loader for round files: YAML descriptions of a finished round that can be
scored offline.

Amounts, indices and rates are written as strings so that 256-bit values survive the YAML parser.

*/

package roundfile

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/avs/internal/analyzer"
	"github.com/elys-network/avs/internal/types"
)

var ErrInvalidRoundFile = errors.New("invalid round file")

// Round is a parsed round file.
type Round struct {
	Input      analyzer.RoundInput
	Parameters *types.ScoringParameters // nil when the file does not set them
}

type fileRound struct {
	TotalAssets    string          `yaml:"total_assets"` // sdk.Coin, e.g. 1000000uusdc
	ElapsedSeconds int64           `yaml:"elapsed_seconds"`
	Parameters     *fileParameters `yaml:"parameters"`
	Resources      []fileResource  `yaml:"resources"`
	Responses      []fileResponse  `yaml:"responses"`
}

type fileParameters struct {
	AllocationThreshold           string  `yaml:"allocation_threshold"`
	AllocationSimilarityThreshold float64 `yaml:"allocation_similarity_threshold"`
	APYSimilarityThreshold        float64 `yaml:"apy_similarity_threshold"`
}

type fileResource struct {
	Key                string `yaml:"key"`
	Kind               string `yaml:"kind"`
	TotalSupplied      string `yaml:"total_supplied"`
	TotalBorrowed      string `yaml:"total_borrowed"`
	MaxWithdrawable    string `yaml:"max_withdrawable"`
	UserDeposit        string `yaml:"user_deposit"`
	EntryIndex         string `yaml:"entry_index"`
	ExitIndex          string `yaml:"exit_index"` // Defaults to entry_index
	SupplyRate         string `yaml:"supply_rate"`
	BaseRate           string `yaml:"base_rate"`
	Slope1             string `yaml:"slope1"`
	Slope2             string `yaml:"slope2"`
	OptimalUtilization string `yaml:"optimal_utilization"`
	ReserveFactor      string `yaml:"reserve_factor"`
}

type fileResponse struct {
	ID            string            `yaml:"id"`
	RoundTripTime float64           `yaml:"round_trip_time"`
	Allocation    map[string]string `yaml:"allocation"` // Omitted means the participant did not answer
}

// Load reads and parses a round file.
func Load(path string) (*Round, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read round file %s: %w", path, err)
	}
	round, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return round, nil
}

// Parse converts YAML round data into a scoring input.
func Parse(data []byte) (*Round, error) {
	var raw fileRound
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoundFile, err)
	}

	totalAssets, err := sdk.ParseCoinNormalized(strings.TrimSpace(raw.TotalAssets))
	if err != nil {
		return nil, fmt.Errorf("%w: total_assets %q: %v", ErrInvalidRoundFile, raw.TotalAssets, err)
	}
	if len(raw.Resources) == 0 {
		return nil, fmt.Errorf("%w: no resources", ErrInvalidRoundFile)
	}

	input := analyzer.RoundInput{
		Challenge: types.Challenge{
			TotalAssets: totalAssets,
			Resources:   make(map[types.ResourceKey]types.Resource, len(raw.Resources)),
		},
		EntryIndex:     make(map[types.ResourceKey]math.Int, len(raw.Resources)),
		ElapsedSeconds: raw.ElapsedSeconds,
	}

	for i, r := range raw.Resources {
		resource, entry, err := r.toResource()
		if err != nil {
			return nil, fmt.Errorf("%w: resources[%d]: %v", ErrInvalidRoundFile, i, err)
		}
		if _, dup := input.Challenge.Resources[resource.Key]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %s", ErrInvalidRoundFile, resource.Key)
		}
		input.Challenge.Resources[resource.Key] = resource
		input.EntryIndex[resource.Key] = entry
	}

	seen := make(map[string]bool, len(raw.Responses))
	for i, r := range raw.Responses {
		if r.ID == "" {
			return nil, fmt.Errorf("%w: responses[%d] has no id", ErrInvalidRoundFile, i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("%w: duplicate participant %s", ErrInvalidRoundFile, r.ID)
		}
		seen[r.ID] = true

		response, err := r.toResponse()
		if err != nil {
			return nil, fmt.Errorf("%w: responses[%d]: %v", ErrInvalidRoundFile, i, err)
		}
		input.Responses = append(input.Responses, response)
	}

	round := &Round{Input: input}
	if raw.Parameters != nil {
		threshold, err := parseInt("allocation_threshold", raw.Parameters.AllocationThreshold)
		if err != nil {
			return nil, fmt.Errorf("%w: parameters: %v", ErrInvalidRoundFile, err)
		}
		round.Parameters = &types.ScoringParameters{
			AllocationThreshold:           threshold,
			AllocationSimilarityThreshold: raw.Parameters.AllocationSimilarityThreshold,
			APYSimilarityThreshold:        raw.Parameters.APYSimilarityThreshold,
		}
	}

	return round, nil
}

func (r fileResource) toResource() (types.Resource, math.Int, error) {
	if r.Key == "" {
		return types.Resource{}, math.Int{}, errors.New("missing key")
	}
	kind, err := parseKind(r.Kind)
	if err != nil {
		return types.Resource{}, math.Int{}, err
	}

	resource := types.Resource{Key: types.ResourceKey(r.Key), Kind: kind}
	ints := []struct {
		name  string
		value string
		dst   *math.Int
	}{
		{"total_supplied", r.TotalSupplied, &resource.TotalSupplied},
		{"total_borrowed", r.TotalBorrowed, &resource.TotalBorrowed},
		{"max_withdrawable", r.MaxWithdrawable, &resource.MaxWithdrawable},
		{"user_deposit", r.UserDeposit, &resource.UserDeposit},
	}
	for _, f := range ints {
		if *f.dst, err = parseInt(f.name, f.value); err != nil {
			return types.Resource{}, math.Int{}, err
		}
	}

	decs := []struct {
		name  string
		value string
		dst   *math.LegacyDec
	}{
		{"supply_rate", r.SupplyRate, &resource.SupplyRate},
		{"base_rate", r.BaseRate, &resource.BaseRate},
		{"slope1", r.Slope1, &resource.Slope1},
		{"slope2", r.Slope2, &resource.Slope2},
		{"optimal_utilization", r.OptimalUtilization, &resource.OptimalUtilization},
		{"reserve_factor", r.ReserveFactor, &resource.ReserveFactor},
	}
	for _, f := range decs {
		if *f.dst, err = parseDec(f.name, f.value); err != nil {
			return types.Resource{}, math.Int{}, err
		}
	}

	if strings.TrimSpace(r.EntryIndex) == "" {
		return types.Resource{}, math.Int{}, errors.New("missing entry_index")
	}
	entry, err := parseInt("entry_index", r.EntryIndex)
	if err != nil {
		return types.Resource{}, math.Int{}, err
	}
	resource.YieldIndex = entry
	if strings.TrimSpace(r.ExitIndex) != "" {
		if resource.YieldIndex, err = parseInt("exit_index", r.ExitIndex); err != nil {
			return types.Resource{}, math.Int{}, err
		}
	}
	if !entry.IsPositive() || !resource.YieldIndex.IsPositive() {
		return types.Resource{}, math.Int{}, errors.New("yield indices must be positive")
	}

	return resource, entry, nil
}

func (r fileResponse) toResponse() (types.ParticipantResponse, error) {
	response := types.ParticipantResponse{
		ID:            types.ParticipantID(r.ID),
		RoundTripTime: r.RoundTripTime,
	}
	if r.Allocation == nil {
		return response, nil
	}

	response.Allocation = make(types.Allocation, len(r.Allocation))
	for key, value := range r.Allocation {
		amount, err := parseInt("allocation."+key, value)
		if err != nil {
			return types.ParticipantResponse{}, err
		}
		response.Allocation[types.ResourceKey(key)] = amount
	}
	return response, nil
}

func parseKind(s string) (types.ResourceKind, error) {
	kind := types.ResourceKind(strings.ToUpper(strings.TrimSpace(s)))
	switch kind {
	case types.ResourceFixedRate, types.ResourceLending, types.ResourceShareVault:
		return kind, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// parseInt reads a base-10 integer. Empty means zero.
func parseInt(name, s string) (math.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.ZeroInt(), nil
	}
	v, ok := math.NewIntFromString(s)
	if !ok {
		return math.Int{}, fmt.Errorf("%s: %q is not an integer", name, s)
	}
	return v, nil
}

// parseDec reads a decimal. Empty means zero.
func parseDec(name, s string) (math.LegacyDec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.LegacyZeroDec(), nil
	}
	v, err := math.LegacyNewDecFromStr(s)
	if err != nil {
		return math.LegacyDec{}, fmt.Errorf("%s: %w", name, err)
	}
	return v, nil
}
