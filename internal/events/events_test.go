package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSubscribeFiltersByType(t *testing.T) {
	b := NewBus()

	var scans, all []Event
	b.Subscribe([]EventType{EventScanStarted, EventScanCompleted}, func(e Event) {
		scans = append(scans, e)
	})
	b.SubscribeAll(func(e Event) {
		all = append(all, e)
	})

	b.Publish(Event{Type: EventScanStarted, Source: "scanner"})
	b.Publish(Event{Type: EventJobUpdated})
	b.Publish(Event{Type: EventScanCompleted})

	require.Len(t, scans, 2)
	assert.Equal(t, EventScanStarted, scans[0].Type)
	assert.Equal(t, EventScanCompleted, scans[1].Type)
	assert.Len(t, all, 3)
}

func TestBusStampsTimestamp(t *testing.T) {
	b := NewBus()

	var got Event
	b.SubscribeAll(func(e Event) { got = e })

	b.Publish(Event{Type: EventMediaMoved})
	assert.False(t, got.Timestamp.IsZero())
}

func TestBusUnsubscribe(t *testing.T) {
	b := NewBus()

	count := 0
	unsubscribe := b.SubscribeAll(func(Event) { count++ })

	b.Publish(Event{Type: EventMediaDeleted})
	unsubscribe()
	b.Publish(Event{Type: EventMediaDeleted})
	// Unsubscribing twice is harmless.
	unsubscribe()

	assert.Equal(t, 1, count)
}

func TestGlobalPublishWithoutBus(t *testing.T) {
	prev := GetGlobalEventBus()
	t.Cleanup(func() { SetGlobalEventBus(prev) })

	SetGlobalEventBus(nil)
	// No bus installed means publish is a silent no-op.
	Publish(Event{Type: EventRootSwitched})

	b := NewBus()
	SetGlobalEventBus(b)
	got := 0
	b.SubscribeAll(func(Event) { got++ })
	Publish(Event{Type: EventRootSwitched})
	assert.Equal(t, 1, got)
}
