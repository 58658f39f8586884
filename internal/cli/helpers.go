package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/edugame/xpsync/internal/app/syncer"
	"github.com/edugame/xpsync/internal/daemon"
	"github.com/edugame/xpsync/internal/domain"
)

// withSession opens a session, prints events while fn runs, and flushes
// pending XP before returning.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, s *daemon.Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := daemon.OpenSession(ctx, cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	unregister := s.Bus.Register(func(ev domain.Event) { printEvent(out, ev) })
	defer unregister()
	defer s.Close(ctx)

	return fn(ctx, s)
}

// resultErr turns a failed Result into a command error.
func resultErr(op string, res syncer.Result) error {
	if res.Success {
		return nil
	}
	if res.LocalOnly {
		return fmt.Errorf("%s applied locally, gateway sync failed (%s): %w", op, res.Class, res.Err)
	}
	return fmt.Errorf("%s failed (%s): %w", op, res.Class, res.Err)
}

func printEvent(w io.Writer, ev domain.Event) {
	if flagJSON {
		printJSON(w, ev)
		return
	}
	switch ev.Kind {
	case domain.EventXPAdded:
		fmt.Fprintf(w, "+%d XP (%s) -> %d\n", ev.Amount, ev.Source, ev.NewTotal)
	case domain.EventLevelUp:
		fmt.Fprintf(w, "Level up! Now level %d\n", ev.NewLevel)
	case domain.EventRankImproved:
		fmt.Fprintf(w, "Rank improved to #%d\n", ev.NewRank)
	case domain.EventChallengeCompleted:
		fmt.Fprintf(w, "Challenge completed: +%d XP\n", ev.Amount)
	case domain.EventAchievementUnlocked:
		fmt.Fprintf(w, "Achievements unlocked: %s\n", strings.Join(ev.Achievements, ", "))
	}
}

func printState(w io.Writer, st domain.GamificationState, lp domain.LevelProgress) error {
	if flagJSON {
		printJSON(w, map[string]any{"state": st, "levelProgress": lp})
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "XP\t%d\n", st.TotalXP)
	fmt.Fprintf(tw, "LEVEL\t%d (%d/%d, %.0f%%)\n", st.Level, lp.CurrentLevelXP, lp.RequiredXP, lp.Percentage)
	fmt.Fprintf(tw, "STREAK\t%d (best %d, %d freezes)\n", st.CurrentStreak, st.LongestStreak, st.StreakFreezeCount)
	fmt.Fprintf(tw, "WEEKLY\t%d/%d\n", st.WeeklyProgress, st.WeeklyGoal)
	fmt.Fprintf(tw, "RANK\t%s\n", rankString(st.Rank))
	fmt.Fprintf(tw, "GATEWAY\t%s\n", st.Connectivity)
	if !st.LastSyncAt.IsZero() {
		fmt.Fprintf(tw, "SYNCED\t%s\n", st.LastSyncAt.Local().Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}

// printSyncMetrics writes the session's sync counters below the state table.
func printSyncMetrics(w io.Writer, m domain.SyncMetrics) {
	if m.TotalSyncAttempts == 0 {
		return
	}
	fmt.Fprintf(w, "SYNCS       %d/%d ok (%.0f%%), %d stale, last %dms\n",
		m.SuccessfulSyncAttempts, m.TotalSyncAttempts, m.SuccessRate(), m.StaleResponses, m.LastSyncDurationMs)
	if m.LastError != "" {
		fmt.Fprintf(w, "LAST ERROR  %s\n", m.LastError)
	}
}

func rankString(rank int64) string {
	if rank == domain.UnknownRank {
		return "unranked"
	}
	return "#" + strconv.FormatInt(rank, 10)
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// parseMeta parses key=value pairs. Integer and boolean values keep their type.
func parseMeta(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q: want key=value", p)
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			meta[k] = n
		} else if b, err := strconv.ParseBool(v); err == nil {
			meta[k] = b
		} else {
			meta[k] = v
		}
	}
	return meta, nil
}
