package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a pipeline summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, q *queue.Queue) error {
				cmdCtx := cmd.Context()

				feeds, err := st.ListFeeds(cmdCtx)
				if err != nil {
					return err
				}
				pendingEntries, err := st.ListEntries(cmdCtx, store.EntryFilter{State: store.StatePending})
				if err != nil {
					return err
				}
				enriched, err := st.ListEntries(cmdCtx, store.EntryFilter{State: store.StateEnriched})
				if err != nil {
					return err
				}
				failed, err := st.ListEntries(cmdCtx, store.EntryFilter{State: store.StateFailed})
				if err != nil {
					return err
				}
				draft := true
				drafts, err := st.ListPosts(cmdCtx, store.PostFilter{Draft: &draft})
				if err != nil {
					return err
				}
				stats, err := q.Stats(cmdCtx)
				if err != nil {
					return err
				}

				rows := [][]string{
					{"Feeds", strconv.Itoa(len(feeds))},
					{"Entries pending", strconv.Itoa(len(pendingEntries))},
					{"Entries enriched", strconv.Itoa(len(enriched))},
					{"Entries failed", strconv.Itoa(len(failed))},
					{"Draft posts", strconv.Itoa(len(drafts))},
				}
				for _, stat := range stats {
					rows = append(rows, []string{
						fmt.Sprintf("Queue %s (pending/leased/dead)", stat.Queue),
						fmt.Sprintf("%d/%d/%d", stat.Pending, stat.Leased, stat.Dead),
					})
				}

				table := renderTable(
					[]string{"Metric", "Value"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}
