package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ─── Boundary Coercion ──────────────────────────────────────────────────────
// Server payloads are not fully trusted. Every numeric field goes through
// CoerceInt, which never fails: anything that is not a finite number becomes 0.

// CoerceInt converts v to an integer, falling back to 0.
func CoerceInt(v any) int64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case uint:
		return clampUint(uint64(n))
	case uint32:
		return int64(n)
	case uint64:
		return clampUint(n)
	case float32:
		return floatToInt(float64(n))
	case float64:
		return floatToInt(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return floatToInt(f)
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0
		}
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return floatToInt(f)
	}
	return 0
}

// CoerceNonNegative is CoerceInt clamped at zero.
func CoerceNonNegative(v any) int64 {
	if n := CoerceInt(v); n > 0 {
		return n
	}
	return 0
}

// CoerceString renders v as a string. nil becomes "".
func CoerceString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

// CoerceBool follows truthiness: non-zero numbers, non-empty strings other
// than "false"/"0", and true are true.
func CoerceBool(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		s := strings.TrimSpace(strings.ToLower(b))
		return s != "" && s != "false" && s != "0"
	}
	return CoerceInt(v) != 0
}

// CoerceStrings converts a list payload to strings, skipping nils.
func CoerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return append([]string(nil), ss...)
		}
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == nil {
			continue
		}
		if m, ok := it.(map[string]any); ok {
			// Achievement objects carry their id.
			if id := CoerceString(lookup(m, "id", "achievementId")); id != "" {
				out = append(out, id)
			}
			continue
		}
		out = append(out, CoerceString(it))
	}
	return out
}

// SnapshotFromMap builds a StatsSnapshot from a duck-typed payload. Keys are
// accepted in camelCase or snake_case. Values are coerced, not validated;
// Normalize applies the defaults.
func SnapshotFromMap(m map[string]any) StatsSnapshot {
	if m == nil {
		return StatsSnapshot{}
	}
	return StatsSnapshot{
		TotalXP:           CoerceInt(lookup(m, "totalXP", "total_xp", "xp")),
		Level:             CoerceInt(lookup(m, "level")),
		CurrentStreak:     CoerceInt(lookup(m, "currentStreak", "current_streak", "streak")),
		LongestStreak:     CoerceInt(lookup(m, "longestStreak", "longest_streak")),
		Rank:              CoerceInt(lookup(m, "rank")),
		WeeklyProgress:    CoerceInt(lookup(m, "weeklyProgress", "weekly_progress")),
		WeeklyGoal:        CoerceInt(lookup(m, "weeklyGoal", "weekly_goal")),
		StreakFreezeCount: CoerceInt(lookup(m, "streakFreezeCount", "streak_freeze_count", "streakFreezes")),
	}
}

// Normalize returns s with every field forced into its documented range.
func (s StatsSnapshot) Normalize() StatsSnapshot {
	out := StatsSnapshot{
		TotalXP:           max(s.TotalXP, 0),
		Level:             s.Level,
		CurrentStreak:     max(s.CurrentStreak, 0),
		LongestStreak:     max(s.LongestStreak, 0),
		Rank:              s.Rank,
		WeeklyProgress:    max(s.WeeklyProgress, 0),
		WeeklyGoal:        s.WeeklyGoal,
		StreakFreezeCount: max(s.StreakFreezeCount, 0),
	}
	if out.Level < 1 {
		out.Level = LevelForXP(out.TotalXP)
	}
	if out.Rank < 1 {
		out.Rank = UnknownRank
	}
	if out.WeeklyGoal < 1 {
		out.WeeklyGoal = DefaultWeeklyGoal
	}
	return out
}

func lookup(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func floatToInt(f float64) int64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	if f <= math.MinInt64 {
		return math.MinInt64
	}
	return int64(f)
}

func clampUint(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(u)
}
