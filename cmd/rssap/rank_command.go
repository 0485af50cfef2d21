package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/rank"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

func newRankCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rank",
		Short: "Run one ranking cycle and draft posts from enriched entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
				if err != nil {
					return err
				}
				drafted, err := rank.NewService(cfg, st, logger).RunCycle(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Drafted %d posts\n", drafted)
				return nil
			})
		},
	}
}
