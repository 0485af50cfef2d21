package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rbarrimond/rss-analyzer-poster/internal/config"
	"github.com/rbarrimond/rss-analyzer-poster/internal/store"
)

func newPostsCommand(ctx *commandContext) *cobra.Command {
	postsCmd := &cobra.Command{
		Use:   "posts",
		Short: "Review and act on drafted posts",
	}

	postsCmd.AddCommand(newPostsListCommand(ctx))
	postsCmd.AddCommand(newPostsShowCommand(ctx))
	postsCmd.AddCommand(newPostsPublishCommand(ctx))
	postsCmd.AddCommand(newPostsDiscardCommand(ctx))

	return postsCmd
}

func newPostsListCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var feedKey string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafted posts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				filter := store.PostFilter{FeedKey: feedKey}
				if !all {
					draft := true
					filter.Draft = &draft
				}
				posts, err := st.ListPosts(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if len(posts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No posts")
					return nil
				}
				rows := make([][]string, 0, len(posts))
				for _, post := range posts {
					rows = append(rows, []string{
						post.ID,
						post.Title,
						post.FeedKey,
						yesNo(post.IsDraft),
						post.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				table := renderTable(
					[]string{"ID", "Title", "Feed", "Draft", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include published posts")
	cmd.Flags().StringVar(&feedKey, "feed", "", "Restrict to one feed key")
	return cmd
}

func newPostsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <post-id>",
		Short: "Print a post's rendered content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				post, err := st.GetPost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:      %s\n", post.ID)
				fmt.Fprintf(out, "Feed:    %s\n", post.FeedKey)
				fmt.Fprintf(out, "Entry:   %s\n", post.EntryKey)
				fmt.Fprintf(out, "Draft:   %s\n", yesNo(post.IsDraft))
				fmt.Fprintf(out, "Created: %s\n\n", post.CreatedAt.Local().Format("2006-01-02 15:04"))
				fmt.Fprintln(out, post.Content)
				return nil
			})
		},
	}
}

func newPostsPublishCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <post-id>",
		Short: "Mark a drafted post as published",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				post, err := st.GetPost(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !post.IsDraft {
					return fmt.Errorf("post %s is already published", post.ID)
				}
				if err := st.MarkPostPublished(cmd.Context(), post.ID, post.Version); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Published %s\n", post.ID)
				return nil
			})
		},
	}
}

func newPostsDiscardCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "discard <post-id>",
		Short: "Delete a drafted post",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, st *store.Store) error {
				if err := st.DiscardPost(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Discarded %s\n", args[0])
				return nil
			})
		},
	}
}
