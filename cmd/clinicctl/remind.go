package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/clinic-booking/internal/auth"
	"github.com/wolfman30/clinic-booking/internal/reminders"
	"github.com/wolfman30/clinic-booking/internal/schedule"
)

func remindCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send reminders for a date range now",
		RunE: func(cmd *cobra.Command, args []string) error {
			from, _ := cmd.Flags().GetString("from")
			to, _ := cmd.Flags().GetString("to")
			cadence, _ := cmd.Flags().GetString("cadence")
			return withApp(cmd.Context(), func(ctx context.Context, env *appEnv) error {
				from, to = defaultRange(from, to, time.Now().In(env.app.Resolver.Location()))
				res, err := env.app.Booking.BulkReminder(ctx, auth.System, from, to, cadence)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			})
		},
	}
	cmd.Flags().String("from", "", "First date (YYYY-MM-DD); defaults to tomorrow")
	cmd.Flags().String("to", "", "Last date (YYYY-MM-DD); defaults to from")
	cmd.Flags().String("cadence", string(reminders.SelectAll), "daily, weekly or all")
	return cmd
}

// defaultRange fills a missing start with tomorrow and a missing end with
// the start.
func defaultRange(from, to string, now time.Time) (string, string) {
	if from == "" {
		from = now.AddDate(0, 0, 1).Format(schedule.DateLayout)
	}
	if to == "" {
		to = from
	}
	return from, to
}
