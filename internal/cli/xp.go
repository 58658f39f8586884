package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/daemon"
)

func init() {
	addXPCmd.Flags().StringVarP(&xpSource, "source", "s", "manual", "XP source (course, quiz, practice, ...)")
	addXPCmd.Flags().StringArrayVarP(&xpMeta, "meta", "m", nil, "Metadata key=value (repeatable)")
	rootCmd.AddCommand(addXPCmd)
}

var (
	xpSource string
	xpMeta   []string
)

var addXPCmd = &cobra.Command{
	Use:   "add-xp <amount> [amount...]",
	Short: "Grant XP (1-1000 per grant); several amounts are coalesced",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAddXP,
}

func runAddXP(cmd *cobra.Command, args []string) error {
	amounts := make([]int64, 0, len(args))
	for _, a := range args {
		n, err := strconv.ParseInt(a, 10, 64)
		if err != nil {
			return fmt.Errorf("amount %q: %w", a, err)
		}
		amounts = append(amounts, n)
	}
	meta, err := parseMeta(xpMeta)
	if err != nil {
		return err
	}

	return withSession(cmd, func(ctx context.Context, s *daemon.Session) error {
		for _, n := range amounts {
			if err := resultErr("add-xp", s.Coordinator.RequestAddXP(ctx, n, xpSource, meta)); err != nil {
				return err
			}
		}
		if err := resultErr("flush", s.Coordinator.Flush(ctx)); err != nil {
			return err
		}
		return printState(cmd.OutOrStdout(), s.Coordinator.State(), s.Coordinator.LevelProgress())
	})
}
