// Package engagement implements the rules of the reference stats gateway:
// XP grants, levels, rank, streaks, weekly goals, achievements, challenge
// scoring and streak freezes. It is the server-side system of record the
// client synchronizer reconciles against.
package engagement

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/metrics"
	"github.com/edugame/xpsync/internal/infra/sqlite"
	"github.com/edugame/xpsync/internal/security"
)

// recentXPLimit bounds the ledger rows on the dashboard.
const recentXPLimit = 10

// Service applies gamification rules on top of the sqlite store.
type Service struct {
	db         *sqlite.DB
	catalog    []domain.AchievementDef
	bcryptCost int
	logger     *log.Entry
	now        func() time.Time

	// mu serializes read-modify-write cycles on stats rows.
	mu sync.Mutex
}

// NewService creates the rules service with the default achievement catalog.
func NewService(db *sqlite.DB) *Service {
	return &Service{
		db:      db,
		catalog: AllAchievements(),
		logger:  log.WithField("component", "engagement"),
		now:     time.Now,
	}
}

// SetClock overrides the time source (tests).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetBcryptCost overrides the token hashing cost (tests use bcrypt.MinCost).
func (s *Service) SetBcryptCost(cost int) { s.bcryptCost = cost }

// ─── Accounts ───────────────────────────────────────────────────────────────

// CreateUser registers name and returns the account with its bearer token.
// The token is not recoverable afterwards.
func (s *Service) CreateUser(name string) (domain.User, string, error) {
	if name == "" {
		return domain.User{}, "", fmt.Errorf("user name is required")
	}
	u := domain.User{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
	}
	issued, err := security.IssueToken(u.ID, s.bcryptCost)
	if err != nil {
		return domain.User{}, "", err
	}
	if err := s.db.CreateUser(u, issued.Hash); err != nil {
		return domain.User{}, "", err
	}
	return u, issued.Token, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(token string) (domain.User, error) {
	userID, secret, err := security.ParseToken(token)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	u, hash, err := s.db.GetUser(userID)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if !security.VerifySecret(hash, secret) {
		return domain.User{}, domain.ErrUnauthorized
	}
	return u, nil
}

// ListUsers returns every account.
func (s *Service) ListUsers() ([]domain.User, error) { return s.db.ListUsers() }

// ─── Reads ──────────────────────────────────────────────────────────────────

// Profile returns the authoritative stats of a user.
func (s *Service) Profile(userID string) (domain.StatsSnapshot, error) {
	rec, err := s.db.GetStats(userID)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	return s.snapshot(rec)
}

// Dashboard aggregates the numbers of the home screen.
func (s *Service) Dashboard(userID string) (domain.Dashboard, error) {
	rec, err := s.db.GetStats(userID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	snap, err := s.snapshot(rec)
	if err != nil {
		return domain.Dashboard{}, err
	}
	unlocked, err := s.db.UnlockedAchievements(userID)
	if err != nil {
		return domain.Dashboard{}, err
	}
	recent, err := s.db.RecentXP(userID, recentXPLimit)
	if err != nil {
		return domain.Dashboard{}, err
	}
	return domain.Dashboard{
		Stats:                snap,
		ChallengesCompleted:  rec.ChallengesCompleted,
		AchievementsUnlocked: int64(len(unlocked)),
		AchievementsTotal:    int64(len(s.catalog)),
		RecentXP:             recent,
	}, nil
}

// Achievements returns the catalog with the user's unlock state.
func (s *Service) Achievements(userID string) ([]domain.Achievement, error) {
	if _, err := s.db.GetStats(userID); err != nil {
		return nil, err
	}
	unlocked, err := s.db.UnlockedAchievements(userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Achievement, 0, len(s.catalog))
	for _, def := range s.catalog {
		at, ok := unlocked[def.ID]
		out = append(out, domain.Achievement{
			ID:         def.ID,
			Name:       def.Name,
			Category:   def.Category,
			RewardXP:   def.RewardXP,
			Unlocked:   ok,
			UnlockedAt: at,
		})
	}
	return out, nil
}

// Challenges lists the catalog without answers.
func (s *Service) Challenges() ([]domain.Challenge, error) { return s.db.ListChallenges() }

// ─── Mutations ──────────────────────────────────────────────────────────────

// AddXP grants amount XP. Amounts outside the accepted range are rejected;
// unknown sources are recorded as manual.
func (s *Service) AddXP(userID string, amount int64, source string, metadata map[string]any) (domain.XPAward, error) {
	if err := domain.ValidateXPAmount(amount); err != nil {
		return domain.XPAward{}, err
	}
	src, ok := domain.NormalizeSource(source)
	if !ok {
		s.logger.WithField("source", source).Warn("unknown xp source recorded as manual")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.db.GetStats(userID)
	if err != nil {
		return domain.XPAward{}, err
	}
	now := s.now()
	before := domain.LevelForXP(rec.TotalXP)

	have, err := s.db.UnlockedAchievements(userID)
	if err != nil {
		return domain.XPAward{}, err
	}

	recordActivity(&rec, now)
	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		if err := s.credit(tx, &rec, amount, src, metadata, now); err != nil {
			return err
		}
		if _, err := s.unlockAchievements(tx, have, &rec, now); err != nil {
			return err
		}
		if err := tx.SaveStats(rec); err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.XPAward{}, err
	}

	rank, err := s.db.RankOf(userID)
	if err != nil {
		return domain.XPAward{}, err
	}
	level := domain.LevelForXP(rec.TotalXP)
	return domain.XPAward{
		TotalXP:        rec.TotalXP,
		Level:          level,
		WeeklyProgress: rec.WeeklyProgress,
		Rank:           rank,
		LeveledUp:      level > before,
	}, nil
}

// SubmitChallenge scores answers and grants the scaled reward.
func (s *Service) SubmitChallenge(userID, challengeID string, answers []string, timeSpentSeconds int64) (domain.ChallengeOutcome, error) {
	if len(answers) == 0 {
		return domain.ChallengeOutcome{}, domain.ErrEmptyAnswers
	}
	ch, err := s.db.GetChallenge(challengeID)
	if err != nil {
		return domain.ChallengeOutcome{}, err
	}
	score := Score(ch.Answers, answers)
	gained := RewardFor(ch.RewardXP, score)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.db.GetStats(userID)
	if err != nil {
		return domain.ChallengeOutcome{}, err
	}
	now := s.now()
	before := domain.LevelForXP(rec.TotalXP)

	have, err := s.db.UnlockedAchievements(userID)
	if err != nil {
		return domain.ChallengeOutcome{}, err
	}

	recordActivity(&rec, now)
	rec.ChallengesCompleted++
	if score == 100 {
		rec.PerfectScores++
	}
	var unlocked []string
	err = s.db.WithTx(func(tx *sqlite.Tx) error {
		if gained > 0 {
			meta := map[string]any{"challengeId": ch.ID, "score": score, "timeSpent": timeSpentSeconds}
			if err := s.credit(tx, &rec, gained, domain.SourceChallenge, meta, now); err != nil {
				return err
			}
		}
		var err error
		if unlocked, err = s.unlockAchievements(tx, have, &rec, now); err != nil {
			return err
		}
		if err := tx.SaveStats(rec); err != nil {
			return fmt.Errorf("save stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.ChallengeOutcome{}, err
	}
	metrics.ChallengesScored.Inc()

	snap, err := s.snapshot(rec)
	if err != nil {
		return domain.ChallengeOutcome{}, err
	}
	return domain.ChallengeOutcome{
		Score:                score,
		XPGained:             gained,
		UserStats:            snap,
		LeveledUp:            snap.Level > before,
		AchievementsUnlocked: unlocked,
	}, nil
}

// UseStreakFreeze consumes one freeze and returns the remaining balance.
func (s *Service) UseStreakFreeze(userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.db.GetStats(userID)
	if err != nil {
		return 0, err
	}
	if err := spendFreeze(&rec, s.now()); err != nil {
		return 0, err
	}
	if err := s.db.SaveStats(rec); err != nil {
		return 0, fmt.Errorf("save stats: %w", err)
	}
	return rec.StreakFreezes, nil
}

// ─── Internals ──────────────────────────────────────────────────────────────

// credit adds amount to the totals and the ledger. Caller holds s.mu.
func (s *Service) credit(tx *sqlite.Tx, rec *domain.StatsRecord, amount int64, src domain.XPSource, metadata map[string]any, now time.Time) error {
	rollWeek(rec, now)
	if _, err := tx.AppendXP(rec.UserID, amount, src, metadata, now); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	rec.TotalXP += amount
	rec.WeeklyProgress += amount
	rec.Level = domain.LevelForXP(rec.TotalXP)
	metrics.XPAwarded.WithLabelValues(string(src)).Add(float64(amount))
	return nil
}

// snapshot renders rec as seen now, with the live rank.
func (s *Service) snapshot(rec domain.StatsRecord) (domain.StatsSnapshot, error) {
	now := s.now()
	rollWeek(&rec, now)
	rank, err := s.db.RankOf(rec.UserID)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	return domain.StatsSnapshot{
		TotalXP:           rec.TotalXP,
		Level:             domain.LevelForXP(rec.TotalXP),
		CurrentStreak:     liveStreak(rec, now),
		LongestStreak:     rec.LongestStreak,
		Rank:              rank,
		WeeklyProgress:    rec.WeeklyProgress,
		WeeklyGoal:        rec.WeeklyGoal,
		StreakFreezeCount: rec.StreakFreezes,
	}, nil
}
