package domain

import "time"

// ─── Achievements ───────────────────────────────────────────────────────────

// AchievementCategory groups achievements by theme.
type AchievementCategory string

const (
	CatGettingStarted AchievementCategory = "getting_started"
	CatStreaks        AchievementCategory = "streaks"
	CatProgress       AchievementCategory = "progress"
	CatMastery        AchievementCategory = "mastery"
)

// AchievementDef defines a single achievement's requirements.
type AchievementDef struct {
	ID        string                   `json:"id"`
	Name      string                   `json:"name"`
	Category  AchievementCategory      `json:"category"`
	RewardXP  int64                    `json:"reward_xp"`
	Predicate func(LearnerStats) bool `json:"-"` // Check function (not serialized)
}

// Achievement is a catalog entry with its unlock state for one user.
type Achievement struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Category   AchievementCategory `json:"category"`
	RewardXP   int64               `json:"rewardXP"`
	Unlocked   bool                `json:"unlocked"`
	UnlockedAt time.Time           `json:"unlockedAt,omitempty"`
}

// LearnerStats is a snapshot of server state fed to achievement predicates.
type LearnerStats struct {
	TotalXP             int64 `json:"total_xp"`
	Level               int64 `json:"level"`
	CurrentStreak       int64 `json:"current_streak"`
	LongestStreak       int64 `json:"longest_streak"`
	ChallengesCompleted int64 `json:"challenges_completed"`
	PerfectScores       int64 `json:"perfect_scores"`
	WeeklyProgress      int64 `json:"weekly_progress"`
	WeeklyGoal          int64 `json:"weekly_goal"`
}

// DefaultStreakFreezes is the balance granted to a new account.
const DefaultStreakFreezes int64 = 2

// StatsRecord is the persisted per-user row on the reference server.
type StatsRecord struct {
	UserID string `json:"user_id"`
	LearnerStats
	StreakFreezes int64  `json:"streak_freezes"`
	WeekKey       string `json:"week_key"`        // ISO week the weekly progress belongs to
	LastActiveDay string `json:"last_active_day"` // YYYY-MM-DD, UTC
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// Challenge is a scored exercise held by the reference server.
type Challenge struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Answers  []string `json:"-"`
	RewardXP int64    `json:"rewardXP"`
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// XPEntry is one row of the server-side XP ledger.
type XPEntry struct {
	ID        int64     `json:"id"`
	Amount    int64     `json:"amount"`
	Source    XPSource  `json:"source"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is a reference-server account.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
