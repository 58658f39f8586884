package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show XP, level, streak and rank from the gateway",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *daemon.Session) error {
		c := s.Coordinator
		if err := printState(cmd.OutOrStdout(), c.State(), c.LevelProgress()); err != nil {
			return err
		}
		if !flagJSON {
			printSyncMetrics(cmd.OutOrStdout(), c.Metrics())
		}
		return nil
	})
}
