package engagement

import (
	"fmt"
	"time"

	"github.com/edugame/xpsync/internal/domain"
)

// Streak rules. A day counts once the learner earns XP or finishes a
// challenge on it (UTC). Missing a day resets the streak unless a streak
// freeze bridged the gap.

const dayLayout = "2006-01-02"

func dayKey(t time.Time) string { return t.UTC().Format(dayLayout) }

// recordActivity bumps the streak on the first activity of a day.
// Reports whether the streak changed.
func recordActivity(rec *domain.StatsRecord, now time.Time) bool {
	today := dayKey(now)
	if rec.LastActiveDay == today {
		return false
	}
	if rec.LastActiveDay == dayKey(now.AddDate(0, 0, -1)) {
		rec.CurrentStreak++
	} else {
		rec.CurrentStreak = 1
	}
	rec.LastActiveDay = today
	rec.LongestStreak = max(rec.LongestStreak, rec.CurrentStreak)
	return true
}

// spendFreeze consumes one freeze. When the learner was last active
// yesterday the freeze covers today, keeping the streak alive until tomorrow.
func spendFreeze(rec *domain.StatsRecord, now time.Time) error {
	if rec.StreakFreezes <= 0 {
		return domain.ErrNoFreezesAvailable
	}
	rec.StreakFreezes--
	if rec.LastActiveDay == dayKey(now.AddDate(0, 0, -1)) {
		rec.LastActiveDay = dayKey(now)
	}
	return nil
}

// liveStreak is the streak as seen today: a streak whose last day is older
// than yesterday is already broken.
func liveStreak(rec domain.StatsRecord, now time.Time) int64 {
	switch rec.LastActiveDay {
	case dayKey(now), dayKey(now.AddDate(0, 0, -1)):
		return rec.CurrentStreak
	}
	return 0
}

// rollWeek resets weekly progress when the ISO week changes.
func rollWeek(rec *domain.StatsRecord, now time.Time) {
	if key := isoWeek(now); rec.WeekKey != key {
		rec.WeekKey = key
		rec.WeeklyProgress = 0
	}
}

// isoWeek returns "YYYY-Www" for the given time.
func isoWeek(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
