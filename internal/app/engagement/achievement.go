package engagement

import (
	"time"

	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/sqlite"
)

// ─── Achievement Definitions ────────────────────────────────────────────────
// Each achievement is checked against a LearnerStats snapshot.

// AllAchievements returns the full achievement catalog.
func AllAchievements() []domain.AchievementDef {
	return []domain.AchievementDef{
		// ── Getting Started ────────────────────────────────────────────
		{
			ID: "first_steps", Name: "First Steps", Category: domain.CatGettingStarted, RewardXP: 10,
			Predicate: func(s domain.LearnerStats) bool { return s.TotalXP > 0 },
		},
		{
			ID: "first_challenge", Name: "Challenger", Category: domain.CatGettingStarted, RewardXP: 25,
			Predicate: func(s domain.LearnerStats) bool { return s.ChallengesCompleted >= 1 },
		},

		// ── Streaks ────────────────────────────────────────────────────
		{
			ID: "streak_3", Name: "Warming Up", Category: domain.CatStreaks, RewardXP: 30,
			Predicate: func(s domain.LearnerStats) bool { return s.CurrentStreak >= 3 },
		},
		{
			ID: "streak_7", Name: "Week Warrior", Category: domain.CatStreaks, RewardXP: 100,
			Predicate: func(s domain.LearnerStats) bool { return s.CurrentStreak >= 7 },
		},
		{
			ID: "streak_30", Name: "Monthly Scholar", Category: domain.CatStreaks, RewardXP: 500,
			Predicate: func(s domain.LearnerStats) bool { return s.LongestStreak >= 30 },
		},

		// ── Progress ───────────────────────────────────────────────────
		{
			ID: "weekly_goal", Name: "Goal Getter", Category: domain.CatProgress, RewardXP: 50,
			Predicate: func(s domain.LearnerStats) bool { return s.WeeklyGoal > 0 && s.WeeklyProgress >= s.WeeklyGoal },
		},
		{
			ID: "level_5", Name: "Rising Star", Category: domain.CatProgress, RewardXP: 100,
			Predicate: func(s domain.LearnerStats) bool { return s.Level >= 5 },
		},
		{
			ID: "level_10", Name: "Seasoned Learner", Category: domain.CatProgress, RewardXP: 250,
			Predicate: func(s domain.LearnerStats) bool { return s.Level >= 10 },
		},

		// ── Mastery ────────────────────────────────────────────────────
		{
			ID: "perfect_score", Name: "Flawless", Category: domain.CatMastery, RewardXP: 50,
			Predicate: func(s domain.LearnerStats) bool { return s.PerfectScores >= 1 },
		},
		{
			ID: "sharp_mind", Name: "Sharp Mind", Category: domain.CatMastery, RewardXP: 200,
			Predicate: func(s domain.LearnerStats) bool { return s.PerfectScores >= 10 },
		},
		{
			ID: "challenges_50", Name: "Relentless", Category: domain.CatMastery, RewardXP: 300,
			Predicate: func(s domain.LearnerStats) bool { return s.ChallengesCompleted >= 50 },
		},
	}
}

// unlockAchievements evaluates the catalog against rec and credits rewards.
// have holds the ids already unlocked and is updated in place. Rewards can
// satisfy further predicates, so evaluation repeats until a pass unlocks
// nothing. Returns ids in unlock order. Caller holds s.mu.
func (s *Service) unlockAchievements(tx *sqlite.Tx, have map[string]time.Time, rec *domain.StatsRecord, now time.Time) ([]string, error) {
	var unlocked []string
	for {
		progressed := false
		for _, def := range s.catalog {
			if _, ok := have[def.ID]; ok {
				continue
			}
			rec.Level = domain.LevelForXP(rec.TotalXP)
			if def.Predicate == nil || !def.Predicate(rec.LearnerStats) {
				continue
			}
			isNew, err := tx.UnlockAchievement(rec.UserID, def.ID, now)
			if err != nil {
				return nil, err
			}
			have[def.ID] = now
			if !isNew {
				continue
			}
			unlocked = append(unlocked, def.ID)
			progressed = true
			if def.RewardXP > 0 {
				if err := s.credit(tx, rec, def.RewardXP, domain.SourceAchievement, map[string]any{"achievement": def.ID}, now); err != nil {
					return nil, err
				}
			}
			s.logger.WithField("user", rec.UserID).WithField("achievement", def.ID).Info("achievement unlocked")
		}
		if !progressed {
			return unlocked, nil
		}
	}
}
