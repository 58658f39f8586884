package eventbus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edugame/xpsync/internal/app/eventbus"
	"github.com/edugame/xpsync/internal/domain"
)

func TestRegisterPublishUnregister(t *testing.T) {
	bus := eventbus.New()

	calls := 0
	unregister := bus.Register(func(domain.Event) { calls++ })

	bus.Publish(domain.Event{Kind: domain.EventXPAdded, Amount: 10})
	unregister()
	bus.Publish(domain.Event{Kind: domain.EventXPAdded, Amount: 10})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.Len())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	bus := eventbus.New()
	unA := bus.Register(func(domain.Event) {})
	bus.Register(func(domain.Event) {})

	unA()
	unA()
	assert.Equal(t, 1, bus.Len())
}

func TestSameFunctionRegisteredTwice(t *testing.T) {
	bus := eventbus.New()

	calls := 0
	fn := func(domain.Event) { calls++ }
	unFirst := bus.Register(fn)
	bus.Register(fn)

	bus.Publish(domain.Event{Kind: domain.EventLevelUp})
	assert.Equal(t, 2, calls)

	unFirst()
	bus.Publish(domain.Event{Kind: domain.EventLevelUp})
	assert.Equal(t, 3, calls, "second registration survives")
}

func TestPublish_RegistrationOrder(t *testing.T) {
	bus := eventbus.New()

	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		bus.Register(func(domain.Event) { order = append(order, i) })
	}

	bus.Publish(domain.Event{Kind: domain.EventRankImproved})
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestPublish_PanickingListenerIsolated(t *testing.T) {
	bus := eventbus.New()

	bus.Register(func(domain.Event) { panic("boom") })
	got := 0
	bus.Register(func(domain.Event) { got++ })

	require.NotPanics(t, func() {
		bus.Publish(domain.Event{Kind: domain.EventXPAdded})
	})
	assert.Equal(t, 1, got)
}

func TestPublish_NormalizesFields(t *testing.T) {
	bus := eventbus.New()
	fixed := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	bus.SetClock(func() time.Time { return fixed })

	var got domain.Event
	bus.Register(func(ev domain.Event) { got = ev })

	bus.Publish(domain.Event{Kind: domain.EventXPAdded, Amount: -3, NewTotal: -1, Source: "bogus"})

	assert.NotEmpty(t, got.ID)
	assert.Equal(t, int64(0), got.Amount)
	assert.Equal(t, int64(0), got.NewTotal)
	assert.Equal(t, domain.SourceManual, got.Source)
	assert.Equal(t, fixed, got.Timestamp)
}

func TestPublish_UnknownKindDropped(t *testing.T) {
	bus := eventbus.New()
	calls := 0
	bus.Register(func(domain.Event) { calls++ })

	bus.Publish(domain.Event{Kind: "confetti"})
	assert.Equal(t, 0, calls)
}

func TestPublishRaw_CoercesPayload(t *testing.T) {
	bus := eventbus.New()

	var got domain.Event
	bus.Register(func(ev domain.Event) { got = ev })

	bus.PublishRaw("xp_added", map[string]any{
		"amount":       "25",
		"newTotal":     float64(1025),
		"newLevel":     nil,
		"leveledUp":    1,
		"source":       "quiz",
		"achievements": []any{"first_steps", nil, map[string]any{"id": "streak_7"}},
		"timestamp":    "2026-03-01T08:00:00Z",
	})

	assert.Equal(t, domain.EventXPAdded, got.Kind)
	assert.Equal(t, int64(25), got.Amount)
	assert.Equal(t, int64(1025), got.NewTotal)
	assert.Equal(t, int64(0), got.NewLevel)
	assert.True(t, got.LeveledUp)
	assert.Equal(t, domain.SourceQuiz, got.Source)
	assert.Equal(t, []string{"first_steps", "streak_7"}, got.Achievements)
	assert.Equal(t, 2026, got.Timestamp.Year())
}

func TestPublish_ListenerRegisteredDuringDeliveryWaitsForNextEvent(t *testing.T) {
	bus := eventbus.New()

	late := 0
	bus.Register(func(domain.Event) {
		bus.Register(func(domain.Event) { late++ })
	})

	bus.Publish(domain.Event{Kind: domain.EventLevelUp})
	assert.Equal(t, 0, late)
	bus.Publish(domain.Event{Kind: domain.EventLevelUp})
	assert.Equal(t, 1, late)
}
