package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	rootCmd.AddCommand(freezeCmd)
}

var freezeCmd = &cobra.Command{
	Use:   "freeze",
	Short: "Spend a streak freeze to protect the current streak",
	Args:  cobra.NoArgs,
	RunE:  runFreeze,
}

func runFreeze(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *daemon.Session) error {
		res := s.Coordinator.UseStreakFreeze(ctx)
		if err := resultErr("freeze", res); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Streak protected, %d freezes left\n", res.State.StreakFreezeCount)
		return nil
	})
}
