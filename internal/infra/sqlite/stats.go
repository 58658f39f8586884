package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edugame/xpsync/internal/domain"
)

// ─── Transactions ───────────────────────────────────────────────────────────

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Tx groups the writes of one grant so they commit or roll back together.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn in a transaction, committing only if fn returns nil.
// fn must not call DB methods: the pool holds a single connection.
func (d *DB) WithTx(fn func(*Tx) error) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (t *Tx) SaveStats(r domain.StatsRecord) error { return saveStats(t.tx, r) }

func (t *Tx) AppendXP(userID string, amount int64, source domain.XPSource, metadata map[string]any, at time.Time) (int64, error) {
	return appendXP(t.tx, userID, amount, source, metadata, at)
}

func (t *Tx) UnlockAchievement(userID, id string, at time.Time) (bool, error) {
	return unlockAchievement(t.tx, userID, id, at)
}

// ─── Stats ──────────────────────────────────────────────────────────────────

// GetStats loads the stats row of a user. Level is derived from total XP.
func (d *DB) GetStats(userID string) (domain.StatsRecord, error) {
	var r domain.StatsRecord
	err := d.db.QueryRow(
		`SELECT user_id, total_xp, current_streak, longest_streak, weekly_progress, weekly_goal,
		        week_key, streak_freezes, last_active_day, challenges_completed, perfect_scores
		 FROM stats WHERE user_id = ?`, userID,
	).Scan(&r.UserID, &r.TotalXP, &r.CurrentStreak, &r.LongestStreak, &r.WeeklyProgress, &r.WeeklyGoal,
		&r.WeekKey, &r.StreakFreezes, &r.LastActiveDay, &r.ChallengesCompleted, &r.PerfectScores)
	if errors.Is(err, sql.ErrNoRows) {
		return r, domain.ErrUserNotFound
	}
	if err != nil {
		return r, err
	}
	r.Level = domain.LevelForXP(r.TotalXP)
	return r, nil
}

// SaveStats writes every mutable column of r.
func (d *DB) SaveStats(r domain.StatsRecord) error { return saveStats(d.db, r) }

func saveStats(e execer, r domain.StatsRecord) error {
	res, err := e.Exec(
		`UPDATE stats SET total_xp = ?, current_streak = ?, longest_streak = ?, weekly_progress = ?,
		        weekly_goal = ?, week_key = ?, streak_freezes = ?, last_active_day = ?,
		        challenges_completed = ?, perfect_scores = ?
		 WHERE user_id = ?`,
		r.TotalXP, r.CurrentStreak, r.LongestStreak, r.WeeklyProgress,
		r.WeeklyGoal, r.WeekKey, r.StreakFreezes, r.LastActiveDay,
		r.ChallengesCompleted, r.PerfectScores, r.UserID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// RankOf returns the 1-based leaderboard position of a user by total XP.
// Ties share a rank.
func (d *DB) RankOf(userID string) (int64, error) {
	var rank int64
	err := d.db.QueryRow(
		`SELECT COUNT(*) + 1 FROM stats
		 WHERE total_xp > (SELECT total_xp FROM stats WHERE user_id = ?)`, userID,
	).Scan(&rank)
	return rank, err
}

// ─── XP Ledger ──────────────────────────────────────────────────────────────

// AppendXP records a grant. Returns the ledger row id.
func (d *DB) AppendXP(userID string, amount int64, source domain.XPSource, metadata map[string]any, at time.Time) (int64, error) {
	return appendXP(d.db, userID, amount, source, metadata, at)
}

func appendXP(e execer, userID string, amount int64, source domain.XPSource, metadata map[string]any, at time.Time) (int64, error) {
	meta := "{}"
	if len(metadata) > 0 {
		buf, err := json.Marshal(metadata)
		if err != nil {
			return 0, fmt.Errorf("encode metadata: %w", err)
		}
		meta = string(buf)
	}
	res, err := e.Exec(
		`INSERT INTO xp_ledger (user_id, amount, source, metadata, created_at) VALUES (?, ?, ?, ?, ?)`,
		userID, amount, string(source), meta, at.Unix(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentXP returns the newest ledger rows of a user.
func (d *DB) RecentXP(userID string, limit int) ([]domain.XPEntry, error) {
	rows, err := d.db.Query(
		`SELECT id, amount, source, created_at FROM xp_ledger
		 WHERE user_id = ? ORDER BY id DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.XPEntry
	for rows.Next() {
		var (
			e  domain.XPEntry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Amount, &e.Source, &ts); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// LedgerTotal sums a user's ledger. Matches stats.total_xp when consistent.
func (d *DB) LedgerTotal(userID string) (int64, error) {
	var total int64
	err := d.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM xp_ledger WHERE user_id = ?`, userID).Scan(&total)
	return total, err
}

// ─── Achievements ───────────────────────────────────────────────────────────

// UnlockAchievement records an achievement as unlocked.
// Returns false if already unlocked (idempotent).
func (d *DB) UnlockAchievement(userID, id string, at time.Time) (bool, error) {
	return unlockAchievement(d.db, userID, id, at)
}

func unlockAchievement(e execer, userID, id string, at time.Time) (bool, error) {
	result, err := e.Exec(
		`INSERT OR IGNORE INTO user_achievements (user_id, achievement_id, unlocked_at) VALUES (?, ?, ?)`,
		userID, id, at.Unix(),
	)
	if err != nil {
		return false, err
	}
	n, _ := result.RowsAffected()
	return n > 0, nil // true = newly unlocked
}

// UnlockedAchievements maps achievement id to unlock time for a user.
func (d *DB) UnlockedAchievements(userID string) (map[string]time.Time, error) {
	rows, err := d.db.Query(
		`SELECT achievement_id, unlocked_at FROM user_achievements WHERE user_id = ?`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			ts int64
		)
		if err := rows.Scan(&id, &ts); err != nil {
			return nil, err
		}
		out[id] = time.Unix(ts, 0).UTC()
	}
	return out, rows.Err()
}

// ─── Challenges ─────────────────────────────────────────────────────────────

// UpsertChallenge inserts or replaces a catalog entry.
func (d *DB) UpsertChallenge(c domain.Challenge) error {
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	_, err = d.db.Exec(
		`INSERT INTO challenges (id, title, answers, reward_xp) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			title=excluded.title,
			answers=excluded.answers,
			reward_xp=excluded.reward_xp`,
		c.ID, c.Title, string(answers), c.RewardXP,
	)
	return err
}

// GetChallenge returns a catalog entry with its expected answers.
func (d *DB) GetChallenge(id string) (domain.Challenge, error) {
	row := d.db.QueryRow(`SELECT id, title, answers, reward_xp FROM challenges WHERE id = ?`, id)
	c, err := scanChallenge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return c, fmt.Errorf("%s: %w", id, domain.ErrUnknownChallenge)
	}
	return c, err
}

// ListChallenges returns the catalog ordered by id.
func (d *DB) ListChallenges() ([]domain.Challenge, error) {
	rows, err := d.db.Query(`SELECT id, title, answers, reward_xp FROM challenges ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanChallenge(s scanner) (domain.Challenge, error) {
	var (
		c       domain.Challenge
		answers string
	)
	if err := s.Scan(&c.ID, &c.Title, &answers, &c.RewardXP); err != nil {
		return c, err
	}
	if err := json.Unmarshal([]byte(answers), &c.Answers); err != nil {
		return c, fmt.Errorf("decode answers of %s: %w", c.ID, err)
	}
	return c, nil
}
