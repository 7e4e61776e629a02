// ABOUTME: User subcommands for the admin CLI
// ABOUTME: add, list, set-email, and delete

package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/store"
)

func newUserCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	var email string
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a user",
		Args:  cobra.NoArgs,
	}
	add.Flags().StringVar(&email, "email", "", "email address (required)")
	_ = add.MarkFlagRequired("email")
	add.RunE = f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
		user := &store.User{ID: uuid.New().String(), Email: email, CreatedAt: time.Now().UTC()}
		if err := s.CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return fmt.Errorf("email %s is already registered", email)
			}
			return err
		}
		success(add.OutOrStdout(), "created user %s (%s)", user.ID, user.Email)
		return nil
	})

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  cobra.NoArgs,
	}
	list.Flags().IntVar(&limit, "limit", 100, "maximum users to show")
	list.Flags().IntVar(&offset, "offset", 0, "users to skip")
	list.RunE = f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
		users, err := s.ListUsers(ctx, limit, offset)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(list.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tEMAIL\tCREATED")
		for _, u := range users {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Email, u.CreatedAt.Format(time.RFC3339))
		}
		return tw.Flush()
	})

	setEmail := &cobra.Command{
		Use:   "set-email USER_ID EMAIL",
		Short: "Change a user's email",
		Args:  cobra.ExactArgs(2),
	}
	setEmail.RunE = func(cmd *cobra.Command, args []string) error {
		return f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
			user, err := s.UpdateUserEmail(ctx, args[0], args[1])
			if err != nil {
				return describe("user", args[0], err)
			}
			success(cmd.OutOrStdout(), "user %s email is now %s", user.ID, user.Email)
			return nil
		})(cmd, args)
	}

	del := &cobra.Command{
		Use:   "delete USER_ID",
		Short: "Delete a user without history",
		Args:  cobra.ExactArgs(1),
	}
	del.RunE = func(cmd *cobra.Command, args []string) error {
		return f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
			if err := s.DeleteUser(ctx, args[0]); err != nil {
				if errors.Is(err, store.ErrConflict) {
					return fmt.Errorf("user %s still has messages; clear their history first", args[0])
				}
				return describe("user", args[0], err)
			}
			success(cmd.OutOrStdout(), "deleted user %s", args[0])
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(add, list, setEmail, del)
	return cmd
}
