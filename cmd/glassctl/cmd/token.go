package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var showTokenFlag bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange the service account key for an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newDashboard(cmd.Context())
		if err != nil {
			return err
		}
		defer d.Close()

		token, err := d.AccessToken(cmd.Context())
		if err != nil {
			return err
		}

		value := "..." + token.Value[max(0, len(token.Value)-6):]
		if showTokenFlag {
			value = token.Value
		}

		return printOutput(cmd.OutOrStdout(), map[string]interface{}{
			"access_token": value,
			"expires_at":   token.ExpiresAt.Format(time.RFC3339),
			"expires_in":   int(time.Until(token.ExpiresAt).Seconds()),
		})
	},
}

func init() {
	tokenCmd.Flags().BoolVar(&showTokenFlag, "show", false, "print the full token instead of its last characters")
	rootCmd.AddCommand(tokenCmd)
}
