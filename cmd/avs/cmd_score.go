package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/elys-network/avs/internal/analyzer"
	"github.com/elys-network/avs/internal/config"
	"github.com/elys-network/avs/internal/logger"
	"github.com/elys-network/avs/internal/roundfile"
)

func scoreCmd() *cobra.Command {
	var (
		file    string
		compact bool
	)
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a round file offline and print the result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the result
			logger.SetOutput(cmd.ErrOrStderr())
			logger.Initialize(os.Getenv("LOG_LEVEL"))

			round, err := roundfile.Load(file)
			if err != nil {
				return err
			}

			params := config.DefaultScoringParameters
			if round.Parameters != nil {
				params = *round.Parameters
			}

			result, err := analyzer.ScoreRound(round.Input, params)
			if err != nil {
				return fmt.Errorf("failed to score %s: %w", file, err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			if !compact {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML round file to score")
	cmd.Flags().BoolVar(&compact, "compact", false, "print the result on a single line")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
