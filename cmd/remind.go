package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// newRemindCommand runs one reminder scan and exits, for hosts that
// schedule jobs outside the server process.
func newRemindCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Send today's event reminders to ticket holders",
		RunE: func(cmd *cobra.Command, args []string) error {
			run, err := a.notifications.SendDailyReminders(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		},
	}
}
