package syncer

import (
	"sync"
	"time"
)

// Workflow names a class of gateway calls with its own rate window.
type Workflow string

const (
	WorkflowXP        Workflow = "xp"
	WorkflowProfile   Workflow = "profile"
	WorkflowChallenge Workflow = "challenge"
	WorkflowFreeze    Workflow = "freeze"
	WorkflowForce     Workflow = "force"
)

// Limiter enforces a minimum interval between calls of the same workflow.
// Unlike a sliding-window counter it only remembers the last call per key.
type Limiter struct {
	mu        sync.Mutex
	intervals map[Workflow]time.Duration
	last      map[Workflow]time.Time
	now       func() time.Time
}

// NewLimiter creates a limiter with per-workflow minimum intervals.
// Workflows without an interval are never limited.
func NewLimiter(intervals map[Workflow]time.Duration) *Limiter {
	cp := make(map[Workflow]time.Duration, len(intervals))
	for k, v := range intervals {
		cp[k] = v
	}
	return &Limiter{
		intervals: cp,
		last:      make(map[Workflow]time.Time),
		now:       time.Now,
	}
}

// SetClock overrides the time source (tests).
func (l *Limiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
}

// Remaining returns how long until w may run again (0 = now).
func (l *Limiter) Remaining(w Workflow) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remainingLocked(w)
}

func (l *Limiter) remainingLocked(w Workflow) time.Duration {
	interval := l.intervals[w]
	last, ok := l.last[w]
	if interval <= 0 || !ok {
		return 0
	}
	if elapsed := l.now().Sub(last); elapsed < interval {
		return interval - elapsed
	}
	return 0
}

// Allow reports whether w is outside its window and, if so, records the call.
func (l *Limiter) Allow(w Workflow) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remainingLocked(w) > 0 {
		return false
	}
	l.last[w] = l.now()
	return true
}

// Touch records a call of w regardless of its window.
func (l *Limiter) Touch(w Workflow) {
	l.mu.Lock()
	l.last[w] = l.now()
	l.mu.Unlock()
}

// Reset forgets every recorded call.
func (l *Limiter) Reset() {
	l.mu.Lock()
	l.last = make(map[Workflow]time.Time)
	l.mu.Unlock()
}
