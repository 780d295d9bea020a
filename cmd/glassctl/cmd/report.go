package cmd

import (
	"github.com/spf13/cobra"
)

var realtimeCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Show the number of users active right now",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDashboard(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		m, err := d.FetchRealtime(cmd.Context())
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), m)
	},
}

var historicalCmd = &cobra.Command{
	Use:     "historical",
	Aliases: []string{"history"},
	Short:   "Show daily sessions and users of the last 30 days",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDashboard(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		s, err := d.FetchHistorical(cmd.Context())
		if err != nil {
			return err
		}
		return printOutput(cmd.OutOrStdout(), s)
	},
}

func init() {
	rootCmd.AddCommand(realtimeCmd, historicalCmd)
}
