// Package domain holds the pure types shared by the client-side synchronizer
// and the reference stats gateway. No infrastructure dependencies.
package domain

import "time"

// ─── Constants ──────────────────────────────────────────────────────────────

const (
	// XPPerLevel is the fixed bucket size of the local level formula.
	XPPerLevel int64 = 1000

	// MinXPAmount and MaxXPAmount bound a single XP grant.
	MinXPAmount int64 = 1
	MaxXPAmount int64 = 1000

	// UnknownRank is the placeholder rank before the server reports one.
	UnknownRank int64 = 999

	// DefaultWeeklyGoal applies when the server omits the weekly goal.
	DefaultWeeklyGoal int64 = 500
)

// LevelForXP returns the level for a total XP amount: floor(xp/1000) + 1.
func LevelForXP(xp int64) int64 {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// ─── XP Sources ─────────────────────────────────────────────────────────────

// XPSource categorizes where XP came from.
type XPSource string

const (
	SourceChallenge   XPSource = "challenge"
	SourceCourse      XPSource = "course"
	SourceQuiz        XPSource = "quiz"
	SourcePractice    XPSource = "practice"
	SourceAchievement XPSource = "achievement"
	SourceDailyLogin  XPSource = "daily_login"
	SourceStreakBonus XPSource = "streak_bonus"
	SourceManual      XPSource = "manual"
	SourceBatch       XPSource = "batch"
)

// XPSources is the accepted whitelist.
var XPSources = []XPSource{
	SourceChallenge, SourceCourse, SourceQuiz, SourcePractice, SourceAchievement,
	SourceDailyLogin, SourceStreakBonus, SourceManual, SourceBatch,
}

// ─── Connectivity ───────────────────────────────────────────────────────────

// Connectivity reflects environment-level online/offline signals.
type Connectivity string

const (
	Connected    Connectivity = "connected"
	Disconnected Connectivity = "disconnected"
)

// ─── State ──────────────────────────────────────────────────────────────────

// StatsSnapshot is the server-owned subset of the gamification state.
type StatsSnapshot struct {
	TotalXP           int64 `json:"totalXP"`
	Level             int64 `json:"level"`
	CurrentStreak     int64 `json:"currentStreak"`
	LongestStreak     int64 `json:"longestStreak"`
	Rank              int64 `json:"rank"`
	WeeklyProgress    int64 `json:"weeklyProgress"`
	WeeklyGoal        int64 `json:"weeklyGoal"`
	StreakFreezeCount int64 `json:"streakFreezeCount"`
}

// Mutation records the most recent optimistic change. Display only.
type Mutation struct {
	Amount    int64     `json:"amount"`
	Source    XPSource  `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// GamificationState is the client's best-known view of a user's progress.
type GamificationState struct {
	StatsSnapshot
	Connectivity      Connectivity `json:"connectivity"`
	LastSyncAt        time.Time    `json:"lastSyncTimestamp"`
	PendingSyncCount  int64        `json:"pendingSyncCount"`
	LastLocalMutation *Mutation    `json:"lastLocalMutation,omitempty"`
}

// LevelProgress describes progress inside the current level bucket.
type LevelProgress struct {
	CurrentLevelXP int64   `json:"currentLevelXP"`
	RequiredXP     int64   `json:"requiredXP"`
	Percentage     float64 `json:"percentage"`
	XPToNextLevel  int64   `json:"xpToNextLevel"`
}

// XPGain is the outcome of an optimistic XP grant.
type XPGain struct {
	Amount        int64    `json:"amount"`
	Source        XPSource `json:"source"`
	PreviousTotal int64    `json:"previousTotal"`
	NewTotal      int64    `json:"newTotal"`
	PreviousLevel int64    `json:"previousLevel"`
	NewLevel      int64    `json:"newLevel"`
	LeveledUp     bool     `json:"leveledUp"`
}

// ─── Sync Metrics ───────────────────────────────────────────────────────────

// SyncMetrics are running counters. Not used for correctness.
type SyncMetrics struct {
	TotalSyncAttempts      int64  `json:"totalSyncAttempts"`
	SuccessfulSyncAttempts int64  `json:"successfulSyncAttempts"`
	FailedSyncAttempts     int64  `json:"failedSyncAttempts"`
	StaleResponses         int64  `json:"staleResponses"`
	LastSyncDurationMs     int64  `json:"lastSyncDurationMs"`
	LastError              string `json:"lastError,omitempty"`
}

// SuccessRate returns successful/total as a percentage (0 when idle).
func (m SyncMetrics) SuccessRate() float64 {
	if m.TotalSyncAttempts == 0 {
		return 0
	}
	return float64(m.SuccessfulSyncAttempts) / float64(m.TotalSyncAttempts) * 100
}
