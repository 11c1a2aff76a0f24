package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/users"
)

// userLookup loads the stored profile a token is issued for.
type userLookup interface {
	Get(ctx context.Context, id string) (*users.User, error)
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a bearer token for a registered user",
		Long:  "Issue a bearer token. The admin claim follows the user's stored staff flag.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, _ := cmd.Flags().GetDuration("ttl")
			return withApp(cmd.Context(), func(ctx context.Context, env *appEnv) error {
				if env.app.Issuer == nil {
					return errors.New("ADMIN_JWT_SECRET is required to issue tokens")
				}
				token, err := issueFor(ctx, env.app.Users, env.app.Issuer, args[0], ttl)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), token)
				return nil
			})
		},
	}
	cmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func issueFor(ctx context.Context, lookup userLookup, issuer *auth.Issuer, userID string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("--ttl must be positive")
	}
	u, err := lookup.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	return issuer.Issue(auth.Actor{UserID: u.ID, IsAdmin: u.IsAdmin}, ttl)
}
