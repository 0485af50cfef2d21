package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/ingest"
	"github.com/rbarrimond/rss-analyzer-poster/internal/logging"
	"github.com/rbarrimond/rss-analyzer-poster/internal/queue"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

func newFeedsCommand(ctx *commandContext) *cobra.Command {
	feedsCmd := &cobra.Command{
		Use:   "feeds",
		Short: "Manage feed subscriptions",
	}

	feedsCmd.AddCommand(newFeedsAddCommand(ctx))
	feedsCmd.AddCommand(newFeedsListCommand(ctx))
	feedsCmd.AddCommand(newFeedsRemoveCommand(ctx))
	feedsCmd.AddCommand(newFeedsSyncCommand(ctx))

	return feedsCmd
}

func newFeedsAddCommand(ctx *commandContext) *cobra.Command {
	var title string
	var publisher string
	var languageTag string

	cmd := &cobra.Command{
		Use:   "add <feed-url>",
		Short: "Subscribe to a feed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			if url == "" {
				return fmt.Errorf("feed URL is required")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			subs, err := ingest.LoadSubscriptions(cfg.Paths.FeedsFile)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				if sub.URL == url {
					return fmt.Errorf("feed already subscribed: %s", url)
				}
			}
			subs = append(subs, ingest.Subscription{
				URL:       url,
				Title:     strings.TrimSpace(title),
				Publisher: strings.TrimSpace(publisher),
				Language:  strings.TrimSpace(languageTag),
			})
			if err := ingest.SaveSubscriptions(cfg.Paths.FeedsFile, subs); err != nil {
				return err
			}

			if err := syncSubscriptions(cmd, ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to %s\n", url)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Human-readable feed title")
	cmd.Flags().StringVar(&publisher, "publisher", "", "Publisher name")
	cmd.Flags().StringVar(&languageTag, "language", "", "BCP 47 language tag, e.g. en-US")
	return cmd
}

func newFeedsListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List subscribed feeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				feeds, err := st.ListFeeds(cmd.Context())
				if err != nil {
					return err
				}
				if len(feeds) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No feeds subscribed; add one with `rssap feeds add <url>`")
					return nil
				}
				rows := make([][]string, 0, len(feeds))
				for _, feed := range feeds {
					rows = append(rows, []string{
						feed.Key,
						feed.Title,
						feed.SiteURL,
						feed.Language,
						formatTimestamp(feed.LastChecked),
					})
				}
				table := renderTable(
					[]string{"Key", "Title", "URL", "Language", "Last Checked"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newFeedsRemoveCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remove <feed-url>",
		Short: "Unsubscribe from a feed and delete its entries, enrichments, and posts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				subs, err := ingest.LoadSubscriptions(cfg.Paths.FeedsFile)
				if err != nil {
					return err
				}
				kept := subs[:0]
				var removed *ingest.Subscription
				for _, sub := range subs {
					if sub.URL == url {
						s := sub
						removed = &s
						continue
					}
					kept = append(kept, sub)
				}
				if removed == nil {
					return fmt.Errorf("feed not subscribed: %s", url)
				}
				if err := ingest.SaveSubscriptions(cfg.Paths.FeedsFile, kept); err != nil {
					return err
				}
				if err := st.DeleteFeed(cmd.Context(), removed.Key()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Unsubscribed from %s\n", url)
				return nil
			})
		},
	}
	return cmd
}

func newFeedsSyncCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the subscription file into the feed store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return syncSubscriptions(cmd, ctx)
		},
	}
}

func syncSubscriptions(cmd *cobra.Command, ctx *commandContext) error {
	return ctx.withQueue(func(cfg *config.Config, st *store.Store, q *queue.Queue) error {
		cache, err := ctx.openCache(cfg)
		if err != nil {
			return err
		}
		svc := ingest.NewService(cfg, st, q, cache, logging.NewNop())
		count, err := svc.SyncSubscriptions(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Synced %d feeds\n", count)
		return nil
	})
}

func formatTimestamp(value time.Time) string {
	if value.IsZero() {
		return "never"
	}
	return value.Local().Format("2006-01-02 15:04")
}
