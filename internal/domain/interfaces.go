package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.

// StatsGateway is the remote system of record for a user's stats.
// Implemented by infra/gateway.Client.
type StatsGateway interface {
	// FetchProfile returns the authoritative stats.
	FetchProfile(ctx context.Context) (StatsSnapshot, error)

	// AddExperiencePoints grants amount XP and returns post-update values.
	AddExperiencePoints(ctx context.Context, amount int64, source XPSource, metadata map[string]any) (XPAward, error)

	// SubmitChallenge scores a challenge attempt.
	SubmitChallenge(ctx context.Context, challengeID string, answers []string, timeSpentSeconds int64) (ChallengeOutcome, error)

	// UseStreakFreeze consumes one freeze and returns the remaining count.
	// Fails with ErrNoFreezesAvailable when none are left.
	UseStreakFreeze(ctx context.Context) (int64, error)

	// FetchDashboard and FetchAchievements are the secondary resources
	// pulled by a forced sync.
	FetchDashboard(ctx context.Context) (Dashboard, error)
	FetchAchievements(ctx context.Context) ([]Achievement, error)
}

// XPAward is the gateway's answer to an XP grant.
type XPAward struct {
	TotalXP        int64 `json:"totalXP"`
	Level          int64 `json:"level"`
	WeeklyProgress int64 `json:"weeklyProgress"`
	Rank           int64 `json:"rank"`
	LeveledUp      bool  `json:"leveledUp"`
}

// ChallengeOutcome is the gateway's answer to a challenge submission.
type ChallengeOutcome struct {
	Score                int64         `json:"score"`
	XPGained             int64         `json:"xpGained"`
	UserStats            StatsSnapshot `json:"userStats"`
	LeveledUp            bool          `json:"leveledUp"`
	AchievementsUnlocked []string      `json:"achievementsUnlocked"`
}

// Dashboard aggregates the home screen numbers.
type Dashboard struct {
	Stats                StatsSnapshot `json:"stats"`
	ChallengesCompleted  int64         `json:"challengesCompleted"`
	AchievementsUnlocked int64         `json:"achievementsUnlocked"`
	AchievementsTotal    int64         `json:"achievementsTotal"`
	RecentXP             []XPEntry     `json:"recentXP"`
}
