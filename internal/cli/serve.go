package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().StringVar(&serveData, "data", "", "Data directory for the gateway database (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost string
	servePort int
	serveData string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reference stats gateway",
	Long:  `Start the reference stats gateway backed by SQLite at localhost:8750.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	c := cfg
	if serveHost != "" {
		c.Server.Host = serveHost
	}
	if servePort > 0 {
		c.Server.Port = servePort
	}
	if serveData != "" {
		c.Server.DataDir = serveData
	}

	d, err := daemon.NewWithConfig(c)
	if err != nil {
		return err
	}
	defer d.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return d.Serve(ctx)
}
