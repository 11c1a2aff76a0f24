// Command clinicctl is the operator tool: schema migrations, admin tokens,
// manual reminder sweeps and staff grants.
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "clinicctl",
		Short:         "Clinic booking operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.LoadDotEnv()
		},
	}
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(adminCmd())
	return rootCmd
}

func loadConfig() (*config.Config, *logging.Logger) {
	cfg := config.Load()
	return cfg, logging.New(cfg.LogLevel)
}
