package domain

import "time"

// EventKind names a gamification-relevant occurrence.
type EventKind string

const (
	EventXPAdded             EventKind = "xp_added"
	EventChallengeCompleted  EventKind = "challenge_completed"
	EventAchievementUnlocked EventKind = "achievement_unlocked"
	EventLevelUp             EventKind = "level_up"
	EventRankImproved        EventKind = "rank_improved"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case EventXPAdded, EventChallengeCompleted, EventAchievementUnlocked,
		EventLevelUp, EventRankImproved:
		return true
	}
	return false
}

// Event is a transient, fire-and-forget notification. Totals carried by an
// event are authoritative absolute values, never deltas to re-apply.
type Event struct {
	ID           string    `json:"id"`
	Kind         EventKind `json:"kind"`
	Amount       int64     `json:"amount,omitempty"`
	Source       XPSource  `json:"source,omitempty"`
	NewTotal     int64     `json:"newTotal,omitempty"`
	NewLevel     int64     `json:"newLevel,omitempty"`
	NewRank      int64     `json:"newRank,omitempty"`
	LeveledUp    bool      `json:"leveledUp,omitempty"`
	Achievements []string  `json:"achievements,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// DedupKey is the kind+timestamp pair observers use for exactly-once feedback.
func (e Event) DedupKey() string {
	return string(e.Kind) + "@" + e.Timestamp.UTC().Format(time.RFC3339Nano)
}
