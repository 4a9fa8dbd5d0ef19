// Command hhl syncs Hedgehog Learn content into HubDB and maintains learner
// progress stored on CRM contacts.
package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"hedgehog-learn/internal/config"
	"hedgehog-learn/internal/hubspot"
)

var (
	verbose bool
	timeout time.Duration

	cfg    config.Config
	logger = zap.NewNop()
)

// errFailed marks a run that finished but must exit non-zero. The details
// were already logged.
var errFailed = errors.New("run completed with failures")

var rootCmd = &cobra.Command{
	Use:           "hhl",
	Short:         "Hedgehog Learn content sync and progress tooling",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = config.Load()
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall operation timeout")

	rootCmd.AddCommand(syncCmd, validateCmd, orphansCmd, progressCmd, exportCmd, tokenCmd)
}

// hubspotClient builds the API client, failing when no token is configured.
func hubspotClient() (*hubspot.Client, error) {
	if cfg.HubSpotToken == "" {
		return nil, errors.New("missing env HUBSPOT_PROJECT_ACCESS_TOKEN / HUBSPOT_API_TOKEN / HUBSPOT_PRIVATE_APP_TOKEN")
	}
	return hubspot.New(cfg.HubSpotBaseURL, cfg.HubSpotToken, logger), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}
