package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep a session open, re-syncing the profile and probing the gateway",
	Long: `Keep a sync session open until interrupted. Profile re-syncs and
connectivity probes run on the cron schedules in the [jobs] config section;
events are printed as they arrive.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return withSession(cmd, func(ctx context.Context, s *daemon.Session) error {
		if err := printState(cmd.OutOrStdout(), s.Coordinator.State(), s.Coordinator.LevelProgress()); err != nil {
			return err
		}
		sched := s.Scheduler()
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		<-ctx.Done()
		return nil
	})
}
