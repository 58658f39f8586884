// Package gamification holds the client's local view of a learner's XP,
// level, streak and rank, and the pure transitions applied to it.
package gamification

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/domain"
)

// Store holds a GamificationState. All operations are synchronous and never
// panic. Store does no locking: its single writer (syncer.Coordinator)
// serializes every call.
type Store struct {
	state domain.GamificationState
	now   func() time.Time
}

// NewStore creates a store seeded from a snapshot (zero value allowed).
func NewStore(seed domain.StatsSnapshot) *Store {
	s := &Store{now: time.Now}
	s.state.Connectivity = domain.Connected
	s.Initialize(seed)
	return s
}

// SetClock overrides the time source used for mutation timestamps.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Initialize replaces the server-owned state with a normalized snapshot.
// Malformed values are coerced silently.
func (s *Store) Initialize(snap domain.StatsSnapshot) {
	s.state.StatsSnapshot = snap.Normalize()
	s.state.LastLocalMutation = nil
}

// ApplyOptimisticXPGain adds amount before the server confirms it.
// Amount outside [1, 1000] is rejected without mutation; an unknown source
// is recorded as manual.
func (s *Store) ApplyOptimisticXPGain(amount int64, source string) (domain.XPGain, error) {
	if err := domain.ValidateXPAmount(amount); err != nil {
		return domain.XPGain{}, err
	}
	src, ok := domain.NormalizeSource(source)
	if !ok {
		log.WithField("source", source).Warn("unknown xp source, recording as manual")
	}

	prevXP, prevLevel := s.state.TotalXP, s.state.Level
	s.state.TotalXP += amount
	s.state.Level = domain.LevelForXP(s.state.TotalXP)
	s.state.WeeklyProgress += amount
	s.state.LastLocalMutation = &domain.Mutation{
		Amount:    amount,
		Source:    src,
		Timestamp: s.now().UTC(),
	}

	return domain.XPGain{
		Amount:        amount,
		Source:        src,
		PreviousTotal: prevXP,
		NewTotal:      s.state.TotalXP,
		PreviousLevel: prevLevel,
		NewLevel:      s.state.Level,
		LeveledUp:     s.state.Level > prevLevel,
	}, nil
}

// ReconcileWithServer overwrites the server-owned fields with authoritative
// values. Connectivity, pending count and last mutation are untouched.
func (s *Store) ReconcileWithServer(snap domain.StatsSnapshot) {
	s.state.StatsSnapshot = snap.Normalize()
}

// OverlayUnsentXP re-applies XP that was granted optimistically but not yet
// sent, after server values replaced the local ones. Level only moves up.
func (s *Store) OverlayUnsentXP(amount int64) {
	if amount <= 0 {
		return
	}
	s.state.TotalXP += amount
	s.state.WeeklyProgress += amount
	s.state.Level = max(s.state.Level, domain.LevelForXP(s.state.TotalXP))
}

// ApplyStreakFreezeLocally consumes one freeze.
func (s *Store) ApplyStreakFreezeLocally() error {
	if s.state.StreakFreezeCount <= 0 {
		return domain.ErrNoFreezesAvailable
	}
	s.state.StreakFreezeCount--
	return nil
}

// LevelProgress reports progress inside the current 1000-XP bucket.
func (s *Store) LevelProgress() domain.LevelProgress {
	current := s.state.TotalXP % domain.XPPerLevel
	return domain.LevelProgress{
		CurrentLevelXP: current,
		RequiredXP:     domain.XPPerLevel,
		Percentage:     float64(current) / float64(domain.XPPerLevel) * 100.0,
		XPToNextLevel:  domain.XPPerLevel - current,
	}
}

// State returns a copy of the full state.
func (s *Store) State() domain.GamificationState {
	st := s.state
	if st.LastLocalMutation != nil {
		m := *st.LastLocalMutation
		st.LastLocalMutation = &m
	}
	return st
}

// Stats returns the server-owned subset.
func (s *Store) Stats() domain.StatsSnapshot { return s.state.StatsSnapshot }

// SetConnectivity records an environment online/offline signal.
func (s *Store) SetConnectivity(c domain.Connectivity) {
	if c != domain.Connected && c != domain.Disconnected {
		return
	}
	s.state.Connectivity = c
}

// BeginSync and EndSync track in-flight reconciliations.
func (s *Store) BeginSync() { s.state.PendingSyncCount++ }

func (s *Store) EndSync() {
	if s.state.PendingSyncCount > 0 {
		s.state.PendingSyncCount--
	}
}

// MarkSynced records the time of the last successful reconciliation.
func (s *Store) MarkSynced(at time.Time) { s.state.LastSyncAt = at }

// SetStreakFreezeCount adopts a server-reported freeze balance.
func (s *Store) SetStreakFreezeCount(n int64) {
	s.state.StreakFreezeCount = max(n, 0)
}
