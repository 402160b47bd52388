package config

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/avs/internal/types"
)

// ParticipantEndpoint is one allocator queried every round.
type ParticipantEndpoint struct {
	ID      types.ParticipantID
	Address string // host:port of the participant's gRPC server
}

// loadParticipantEndpoints loads the participant list from PARTICIPANT_ENDPOINTS.
// This function is called by LoadConfig() in General.go.
func loadParticipantEndpoints() ([]ParticipantEndpoint, error) {
	log.Info().Msg("Loading participant endpoints from environment variables...")

	raw, err := getEnv("PARTICIPANT_ENDPOINTS")
	if err != nil {
		return nil, err
	}

	endpoints, err := ParseParticipantEndpoints(raw)
	if err != nil {
		return nil, err
	}

	for _, endpoint := range endpoints {
		log.Debug().
			Str("participant", string(endpoint.ID)).
			Str("address", endpoint.Address).
			Msg("Participant endpoint loaded.")
	}

	return endpoints, nil
}

// ParseParticipantEndpoints parses "id=host:port,id=host:port". Order is preserved, since it is
// the participant order of every round.
func ParseParticipantEndpoints(raw string) ([]ParticipantEndpoint, error) {
	var endpoints []ParticipantEndpoint
	seen := make(map[types.ParticipantID]struct{})

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		id, address, ok := strings.Cut(entry, "=")
		id, address = strings.TrimSpace(id), strings.TrimSpace(address)
		if !ok || id == "" || address == "" {
			return nil, fmt.Errorf("%w: PARTICIPANT_ENDPOINTS entry %q must be id=host:port", ErrInvalidEnv, entry)
		}
		if _, dup := seen[types.ParticipantID(id)]; dup {
			return nil, fmt.Errorf("%w: PARTICIPANT_ENDPOINTS lists %q twice", ErrInvalidEnv, id)
		}
		seen[types.ParticipantID(id)] = struct{}{}

		endpoints = append(endpoints, ParticipantEndpoint{ID: types.ParticipantID(id), Address: address})
	}

	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: PARTICIPANT_ENDPOINTS is empty", ErrInvalidEnv)
	}
	return endpoints, nil
}

// ParticipantListenAddress returns the listen address of the reference participant server.
func ParticipantListenAddress() string {
	return getEnvOrDefault("PARTICIPANT_LISTEN", DefaultParticipantListen)
}
