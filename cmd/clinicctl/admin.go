package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-booking/internal/app/bootstrap"
)

type appEnv struct {
	app *bootstrap.App
}

// withApp opens the database and Redis, assembles the application and runs fn.
func withApp(ctx context.Context, fn func(ctx context.Context, env *appEnv) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger := loadConfig()
	if err := cfg.Validate(); err != nil {
		return err
	}
	db, err := bootstrap.OpenDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient == nil {
		return errors.New("REDIS_ADDR is required")
	}
	defer redisClient.Close()

	app, err := bootstrap.Assemble(ctx, cfg, bootstrap.Infra{Pool: db.Pool, SQL: db.SQL, Redis: redisClient, Logger: logger})
	if err != nil {
		return err
	}
	return fn(ctx, &appEnv{app: app})
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage staff accounts",
	}
	cmd.AddCommand(setAdminCmd("grant", "Give a registered user staff rights", true))
	cmd.AddCommand(setAdminCmd("revoke", "Remove staff rights from a user", false))
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, env *appEnv) error {
				list, err := env.app.Users.List(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tCADENCE\tSTAFF")
				for _, u := range list {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", u.ID, u.DisplayName, u.Cadence, u.IsAdmin)
				}
				return tw.Flush()
			})
		},
	})
	return cmd
}

func setAdminCmd(use, short string, admin bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <user-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, env *appEnv) error {
				if err := env.app.Users.SetAdmin(ctx, args[0], admin); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s staff=%t\n", args[0], admin)
				return nil
			})
		},
	}
}
