// Package sqlite provides SQLite-based persistent storage for the reference
// stats gateway. Uses WAL mode for concurrent reads and crash-safe writes.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)

	"github.com/edugame/xpsync/internal/domain"
)

// DB wraps a SQLite connection with WAL mode and migrations.
type DB struct {
	db *sql.DB
}

// Open creates or opens the SQLite database at dir/gateway.db.
// Enables WAL mode, foreign keys, and 5-second busy timeout.
func Open(dir string) (*DB, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dir, "gateway.db")
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// Connection pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return d, nil
}

// Close cleanly shuts down the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks database connectivity.
func (d *DB) Ping() error {
	return d.db.Ping()
}

// migrate runs idempotent schema migrations.
func (d *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Accounts. token_hash is a bcrypt hash of the bearer secret.
		`CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			token_hash TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,

		// Authoritative per-user stats. Level and rank are derived on read.
		`CREATE TABLE IF NOT EXISTS stats (
			user_id              TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			total_xp             INTEGER NOT NULL DEFAULT 0,
			current_streak       INTEGER NOT NULL DEFAULT 0,
			longest_streak       INTEGER NOT NULL DEFAULT 0,
			weekly_progress      INTEGER NOT NULL DEFAULT 0,
			weekly_goal          INTEGER NOT NULL DEFAULT 500,
			week_key             TEXT NOT NULL DEFAULT '',
			streak_freezes       INTEGER NOT NULL DEFAULT 2,
			last_active_day      TEXT NOT NULL DEFAULT '',
			challenges_completed INTEGER NOT NULL DEFAULT 0,
			perfect_scores       INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stats_xp ON stats(total_xp)`,

		`CREATE TABLE IF NOT EXISTS xp_ledger (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount     INTEGER NOT NULL,
			source     TEXT NOT NULL,
			metadata   TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_xp_user ON xp_ledger(user_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS user_achievements (
			user_id        TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			achievement_id TEXT NOT NULL,
			unlocked_at    INTEGER NOT NULL,
			PRIMARY KEY (user_id, achievement_id)
		)`,

		// Challenge catalog. answers is a JSON array of expected answers.
		`CREATE TABLE IF NOT EXISTS challenges (
			id        TEXT PRIMARY KEY,
			title     TEXT NOT NULL,
			answers   TEXT NOT NULL,
			reward_xp INTEGER NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := d.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// ─── Meta ───────────────────────────────────────────────────────────────────

// SetMeta stores a key-value pair in meta.
func (d *DB) SetMeta(key, value string) error {
	_, err := d.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

// GetMeta retrieves a value from meta. Returns "" if key not found.
func (d *DB) GetMeta(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// ─── Users ──────────────────────────────────────────────────────────────────

// CreateUser inserts an account and its initial stats row.
func (d *DB) CreateUser(u domain.User, tokenHash string) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM users WHERE id = ? OR name = ?`, u.ID, u.Name).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%s: %w", u.Name, domain.ErrUserExists)
	}

	if _, err := tx.Exec(
		`INSERT INTO users (id, name, token_hash, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, tokenHash, u.CreatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO stats (user_id, weekly_goal, streak_freezes) VALUES (?, ?, ?)`,
		u.ID, domain.DefaultWeeklyGoal, domain.DefaultStreakFreezes,
	); err != nil {
		return fmt.Errorf("insert stats: %w", err)
	}
	return tx.Commit()
}

// GetUser returns the account and its token hash.
func (d *DB) GetUser(id string) (domain.User, string, error) {
	var (
		u       domain.User
		hash    string
		created int64
	)
	err := d.db.QueryRow(
		`SELECT id, name, token_hash, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &hash, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return u, "", domain.ErrUserNotFound
	}
	if err != nil {
		return u, "", err
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, hash, nil
}

// ListUsers returns every account ordered by name.
func (d *DB) ListUsers() ([]domain.User, error) {
	rows, err := d.db.Query(`SELECT id, name, created_at FROM users ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var (
			u       domain.User
			created int64
		)
		if err := rows.Scan(&u.ID, &u.Name, &created); err != nil {
			return nil, err
		}
		u.CreatedAt = time.Unix(created, 0).UTC()
		users = append(users, u)
	}
	return users, rows.Err()
}
