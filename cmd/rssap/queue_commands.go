package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work queues",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueDeadCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-queue message counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, q *queue.Queue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queues are empty")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, stat := range stats {
					rows = append(rows, []string{
						stat.Queue,
						strconv.Itoa(stat.Pending),
						strconv.Itoa(stat.Leased),
						strconv.Itoa(stat.Dead),
					})
				}
				table := renderTable(
					[]string{"Queue", "Pending", "Leased", "Dead"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueDeadCommand(ctx *commandContext) *cobra.Command {
	var queueName string

	cmd := &cobra.Command{
		Use:   "dead",
		Short: "List dead-lettered messages",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, q *queue.Queue) error {
				names := []string{queue.FeedChanges, queue.EntryEnrichment}
				if queueName != "" {
					names = []string{queueName}
				}
				var rows [][]string
				for _, name := range names {
					messages, err := q.Dead(cmd.Context(), name)
					if err != nil {
						return err
					}
					for _, msg := range messages {
						rows = append(rows, []string{
							strconv.FormatInt(msg.ID, 10),
							msg.Queue,
							strconv.Itoa(msg.DeliveryCount),
							msg.LastError,
							msg.CreatedAt.Local().Format("2006-01-02 15:04"),
						})
					}
				}
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No dead messages")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Queue", "Deliveries", "Last Error", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&queueName, "queue", "", "Restrict to one queue")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <message-id>",
		Short: "Replay a dead-lettered message with a fresh delivery budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("parse message id %q: %w", args[0], err)
			}
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, q *queue.Queue) error {
				if err := q.Retry(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued message %d\n", id)
				return nil
			})
		},
	}
}
