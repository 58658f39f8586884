// Package cli implements the xpsync command-line interface using Cobra.
// Client commands open a sync session against the configured stats gateway;
// `serve` and `user` operate the local reference gateway.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

var (
	cfg daemon.Config

	flagGateway  string
	flagToken    string
	flagLogLevel string
	flagJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "xpsync",
	Short: "Keep local XP in step with the stats gateway",
	Long: `xpsync applies XP, challenge and streak actions to a local gamification
store immediately, then reconciles them with the authoritative stats gateway
under per-workflow rate limits.

Configuration: $XPSYNC_HOME/config.toml, XPSYNC_* environment variables, flags.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagGateway, "gateway", "", "Stats gateway base URL (overrides config)")
	pf.StringVar(&flagToken, "token", "", "Gateway bearer token (overrides config)")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.BoolVar(&flagJSON, "json", false, "Print results as JSON")
}

// loadConfig layers flags over file and environment configuration.
func loadConfig(cmd *cobra.Command, args []string) error {
	c, err := daemon.LoadConfig()
	if err != nil {
		return err
	}
	if flagGateway != "" {
		c.Gateway.URL = flagGateway
	}
	if flagToken != "" {
		c.Gateway.Token = flagToken
	}
	if flagLogLevel != "" {
		c.Logging.Level = flagLogLevel
	}
	if err := daemon.ConfigureLogging(c.Logging); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	cfg = c
	return nil
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
