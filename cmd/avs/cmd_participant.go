package main

import (
	"fmt"
	"net"
	"os"

	"cosmossdk.io/math"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/elys-network/avs/internal/config"
	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/transport"
)

func participantCmd() *cobra.Command {
	var (
		listen    string
		threshold string
	)
	cmd := &cobra.Command{
		Use:   "participant",
		Short: "Serve the reference allocator as a participant",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger.Initialize(os.Getenv("LOG_LEVEL"))

			amount, ok := math.NewIntFromString(threshold)
			if !ok || amount.IsNegative() {
				return fmt.Errorf("--threshold must be a non-negative integer, got %q", threshold)
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}

			server := transport.NewServer(transport.NewAllocatorServer(amount))
			log.Info().Str("address", lis.Addr().String()).Msg("Reference participant listening")
			return transport.Serve(cmd.Context(), server, lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", config.ParticipantListenAddress(), "gRPC listen address")
	cmd.Flags().StringVar(&threshold, "threshold", "0", "minimum amount every resource receives (base units)")
	return cmd
}
