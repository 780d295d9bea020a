package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/pilab-dev/glass-analytics/config"
	"github.com/pilab-dev/glass-analytics/log"
	"github.com/pilab-dev/glass-analytics/settings"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const appName = "glassctl"

var (
	appLogger log.Logger

	propertyFlag string
	keyFileFlag  string
	outputFlag   string
	verboseFlag  bool
)

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "glassctl queries GA4 reports with a service account key",
	Long: `A command-line interface that mints access tokens for a Google service account and
fetches the realtime and historical GA4 reports the dashboard shows. Configuration is read
the same way as the server (config.yaml, then environment); flags override it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.WarnLevel
		if verboseFlag {
			level = zerolog.DebugLevel
		}
		appLogger = log.NewZerologAdapter(level, true)
		log.InstallGlobal(appLogger)

		switch outputFlag {
		case "json", "yaml":
			return nil
		default:
			return fmt.Errorf("unsupported output format %q (use json or yaml)", outputFlag)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&propertyFlag, "property", "", "GA4 property id (overrides GA4_PROPERTY_ID)")
	rootCmd.PersistentFlags().StringVar(&keyFileFlag, "key-file", "", "service account JSON key file (overrides GA4_SERVICE_ACCOUNT_FILE)")
	rootCmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "yaml", "output format: json or yaml")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
}

// newDashboard builds a dashboard from configuration and flags.
func newDashboard(ctx context.Context) (*settings.Dashboard, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	if propertyFlag != "" {
		cfg.PropertyID = propertyFlag
	}
	if keyFileFlag != "" {
		cfg.ServiceAccountFile = keyFileFlag
	}

	initial, err := cfg.InitialSettings()
	if err != nil {
		return nil, err
	}

	d, err := settings.NewDashboard(ctx, settings.NewMemoryRepository(initial),
		settings.WithLogger(appLogger),
		settings.WithTokenURL(cfg.TokenURI),
		settings.WithBaseURL(cfg.AnalyticsBaseURL),
		settings.WithTimeout(cfg.HTTPTimeout),
	)
	if err != nil {
		return nil, err
	}
	if !d.Configured() {
		_ = d.Close()
		return nil, settings.ErrNotConfigured
	}
	return d, nil
}

func printOutput(w io.Writer, v interface{}) error {
	if outputFlag == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	out, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
