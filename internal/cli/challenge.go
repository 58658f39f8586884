package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	submitCmd.Flags().Int64VarP(&submitTime, "time", "t", 0, "Seconds spent on the challenge")
	rootCmd.AddCommand(submitCmd)
}

var submitTime int64

var submitCmd = &cobra.Command{
	Use:   "submit <challenge-id> <answer> [answer...]",
	Short: "Submit challenge answers for scoring",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runSubmit,
}

func runSubmit(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *daemon.Session) error {
		res := s.Coordinator.SubmitChallenge(ctx, args[0], args[1:], submitTime)
		if err := resultErr("submit", res); err != nil {
			return err
		}
		if flagJSON {
			printJSON(cmd.OutOrStdout(), res.Challenge)
			return nil
		}
		out := res.Challenge
		fmt.Fprintf(cmd.OutOrStdout(), "Score %d%%, +%d XP", out.Score, out.XPGained)
		if len(out.AchievementsUnlocked) > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), ", unlocked %s", strings.Join(out.AchievementsUnlocked, ", "))
		}
		fmt.Fprintln(cmd.OutOrStdout())
		return nil
	})
}
