// ABOUTME: Token subcommand for the admin CLI
// ABOUTME: Issues bearer tokens signed with the server's JWT secret

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/store"
)

// envJWTSecret supplies the secret when no config file sets one.
const envJWTSecret = "AGENTDESK_JWT_SECRET"

func newTokenCmd(f *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	var userID string
	var ttl time.Duration
	issue := &cobra.Command{
		Use:   "issue",
		Short: "Issue a bearer token for a user",
		Args:  cobra.NoArgs,
	}
	issue.Flags().StringVar(&userID, "user", "", "user id (required)")
	issue.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	_ = issue.MarkFlagRequired("user")

	issue.RunE = func(cmd *cobra.Command, args []string) error {
		if ttl <= 0 {
			return errors.New("--ttl must be positive")
		}
		cfg, err := f.loadConfig()
		if err != nil {
			return err
		}
		secret := cfg.Auth.JWTSecret
		if secret == "" {
			secret = os.Getenv(envJWTSecret)
		}
		if secret == "" {
			return fmt.Errorf("no JWT secret: set auth.jwt_secret or $%s", envJWTSecret)
		}
		verifier, err := auth.NewJWTVerifier([]byte(secret))
		if err != nil {
			return err
		}

		return f.withStore(func(ctx context.Context, s *store.SQLiteStore) error {
			if _, err := s.GetUser(ctx, userID); err != nil {
				return describe("user", userID, err)
			}
			token, err := verifier.Generate(userID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		})(cmd, args)
	}

	cmd.AddCommand(issue)
	return cmd
}
