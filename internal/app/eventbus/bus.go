// Package eventbus is an explicit listener registry for gamification events.
// A Bus is owned by (or injected into) the synchronizer; there is no
// process-wide channel.
package eventbus

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/edugame/xpsync/internal/domain"
	"github.com/edugame/xpsync/internal/infra/metrics"
)

// Listener receives a normalized event.
type Listener func(domain.Event)

type entry struct {
	id uint64
	fn Listener
}

// Bus fans events out to registered listeners, synchronously and in
// registration order.
type Bus struct {
	mu      sync.RWMutex
	nextID  uint64
	entries []entry
	now     func() time.Time
	logger  *log.Entry
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		now:    time.Now,
		logger: log.WithField("component", "eventbus"),
	}
}

// SetClock overrides the time source used for missing timestamps.
func (b *Bus) SetClock(now func() time.Time) { b.now = now }

// Register adds fn and returns a function removing exactly this registration.
// The same fn may be registered more than once; each registration is
// independent. The returned function is idempotent.
func (b *Bus) Register(fn Listener) (unregister func()) {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.entries = append(b.entries, entry{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, e := range b.entries {
		if e.id == id {
			b.entries = append(b.entries[:i:i], b.entries[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Publish normalizes ev and invokes every listener registered at this moment.
// A listener that panics is logged and skipped. Unknown kinds are dropped.
func (b *Bus) Publish(ev domain.Event) {
	ev, ok := b.normalize(ev)
	if !ok {
		b.logger.WithField("kind", ev.Kind).Warn("dropping event of unknown kind")
		return
	}

	b.mu.RLock()
	snapshot := make([]entry, len(b.entries))
	copy(snapshot, b.entries)
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(ev.Kind)).Inc()
	for _, e := range snapshot {
		b.deliver(e, ev)
	}
}

// PublishRaw coerces a duck-typed payload into an Event, then publishes it.
func (b *Bus) PublishRaw(kind string, fields map[string]any) {
	ev := domain.Event{
		ID:           domain.CoerceString(fields["id"]),
		Kind:         domain.EventKind(kind),
		Amount:       domain.CoerceInt(fields["amount"]),
		Source:       domain.XPSource(domain.CoerceString(fields["source"])),
		NewTotal:     domain.CoerceInt(fields["newTotal"]),
		NewLevel:     domain.CoerceInt(fields["newLevel"]),
		NewRank:      domain.CoerceInt(fields["newRank"]),
		LeveledUp:    domain.CoerceBool(fields["leveledUp"]),
		Achievements: domain.CoerceStrings(fields["achievements"]),
	}
	if ts := domain.CoerceString(fields["timestamp"]); ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ev.Timestamp = t
		}
	}
	b.Publish(ev)
}

func (b *Bus) deliver(e entry, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.ListenerPanics.Inc()
			b.logger.WithFields(log.Fields{
				"listener": e.id,
				"kind":     ev.Kind,
				"panic":    fmt.Sprint(r),
			}).Error("listener panicked")
		}
	}()
	e.fn(ev)
}

func (b *Bus) normalize(ev domain.Event) (domain.Event, bool) {
	if !ev.Kind.Valid() {
		return ev, false
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}
	ev.Amount = max(ev.Amount, 0)
	ev.NewTotal = max(ev.NewTotal, 0)
	ev.NewLevel = max(ev.NewLevel, 0)
	ev.NewRank = max(ev.NewRank, 0)
	if ev.Source != "" {
		ev.Source, _ = domain.NormalizeSource(string(ev.Source))
	}
	if ev.Achievements != nil {
		ev.Achievements = append([]string(nil), ev.Achievements...)
	}
	return ev, true
}
