package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/contenthash"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

// ingest runs feed polls inline. Discovered entries are enqueued for
// enrichment, which a running serve process picks up.
func newIngestCommand(ctx *commandContext) *cobra.Command {
	var feedURL string
	var enqueueOnly bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Poll subscribed feeds for new entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(func(cfg *config.Config, st *store.Store, q *queue.Queue) error {
				cache, err := ctx.openCache(cfg)
				if err != nil {
					return err
				}
				logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
				if err != nil {
					return err
				}
				svc := ingest.NewService(cfg, st, q, cache, logger)

				if _, err := svc.SyncSubscriptions(cmd.Context()); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if enqueueOnly {
					count, err := svc.EnqueueAll(cmd.Context())
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Enqueued %d feed polls\n", count)
					return nil
				}

				feeds, err := st.ListFeeds(cmd.Context())
				if err != nil {
					return err
				}
				target := strings.TrimSpace(feedURL)
				polled := 0
				for _, feed := range feeds {
					if target != "" && feed.Key != contenthash.SumKey(target) {
						continue
					}
					if err := svc.IngestFeed(cmd.Context(), feed.Key); err != nil {
						fmt.Fprintf(out, "%s: %v\n", feedLabel(feed), err)
						continue
					}
					fmt.Fprintf(out, "%s: ok\n", feedLabel(feed))
					polled++
				}
				if target != "" && polled == 0 {
					return fmt.Errorf("feed not subscribed: %s", target)
				}
				fmt.Fprintf(out, "Polled %d feeds\n", polled)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&feedURL, "feed", "", "Poll a single feed by URL")
	cmd.Flags().BoolVar(&enqueueOnly, "enqueue", false, "Enqueue polls for a running serve process instead of fetching inline")
	return cmd
}

func feedLabel(feed *store.Feed) string {
	if feed.Title != "" {
		return feed.Title
	}
	if feed.SiteURL != "" {
		return feed.SiteURL
	}
	return feed.Key
}
