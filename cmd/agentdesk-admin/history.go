// ABOUTME: History subcommands for the admin CLI
// ABOUTME: Shows or clears the conversation log of one user and agent pair

package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/history"
	"github.com/2389/agentdesk/internal/store"
)

func newHistoryCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear conversation history",
	}

	var userID, agentID string
	pairFlags := func(c *cobra.Command) {
		c.Flags().StringVar(&userID, "user", "", "user id (required)")
		c.Flags().StringVar(&agentID, "agent", "", "agent id (omit for the agent-less conversation)")
		_ = c.MarkFlagRequired("user")
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print a conversation oldest first",
		Args:  cobra.NoArgs,
	}
	pairFlags(show)
	show.RunE = f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
		msgs, err := history.New(s, nil).ListByPair(ctx, userID, agentID)
		if err != nil {
			return err
		}
		out := show.OutOrStdout()
		if len(msgs) == 0 {
			fmt.Fprintln(out, "no messages")
			return nil
		}
		agentColor := color.New(color.FgCyan)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, m := range msgs {
			body := m.Text
			if m.Kind == store.KindImage {
				body = fmt.Sprintf("[image, %d bytes base64]", len(m.Image))
			}
			sender := string(m.Sender)
			if m.Sender == store.RoleAgent {
				sender = agentColor.Sprint(sender)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", m.SentAt.Format(time.RFC3339), sender, truncate(body, 100))
		}
		return tw.Flush()
	})

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete a conversation",
		Args:  cobra.NoArgs,
	}
	pairFlags(clearCmd)
	clearCmd.RunE = f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
		if !history.New(s, nil).ClearPair(ctx, userID, agentID) {
			return fmt.Errorf("clearing history for user %s failed", userID)
		}
		success(clearCmd.OutOrStdout(), "cleared history for user %s", userID)
		return nil
	})

	cmd.AddCommand(show, clearCmd)
	return cmd
}
