package cli

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	syncCmd.Flags().BoolVar(&syncAchievements, "achievements", false, "List the achievement catalog")
	rootCmd.AddCommand(syncCmd)
}

var syncAchievements bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Force a full sync: profile, dashboard and achievements",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(ctx context.Context, s *daemon.Session) error {
		res := s.Coordinator.ForceSync(ctx)
		if err := resultErr("sync", res.Result); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if flagJSON {
			printJSON(out, res)
			return nil
		}

		if err := printState(out, res.State, s.Coordinator.LevelProgress()); err != nil {
			return err
		}
		printSyncMetrics(out, s.Coordinator.Metrics())
		if d := res.Dashboard; d != nil {
			fmt.Fprintf(out, "\nChallenges completed: %d, achievements %d/%d\n",
				d.ChallengesCompleted, d.AchievementsUnlocked, d.AchievementsTotal)
		}
		if syncAchievements && len(res.Achievements) > 0 {
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "\nID\tNAME\tREWARD\tUNLOCKED")
			for _, a := range res.Achievements {
				unlocked := "-"
				if a.Unlocked {
					unlocked = a.UnlockedAt.Local().Format("2006-01-02")
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", a.ID, a.Name, a.RewardXP, unlocked)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
		}

		names := make([]string, 0, len(res.Partial))
		for name := range res.Partial {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "warning: %s unavailable: %v\n", name, res.Partial[name])
		}
		return nil
	})
}
