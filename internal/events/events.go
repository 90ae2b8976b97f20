// Package events provides the in-process event bus used for cross-module
// notifications (scan progress, job transitions, root switches). Consumers
// subscribe with a handler; the WebSocket feed fans events out to clients.
package events

import (
	"sync"
	"time"
)

// EventType identifies a class of event.
type EventType string

const (
	EventScanStarted   EventType = "scan.started"
	EventScanProgress  EventType = "scan.progress"
	EventScanCompleted EventType = "scan.completed"

	EventMediaMoved   EventType = "media.moved"
	EventMediaDeleted EventType = "media.deleted"

	EventJobUpdated EventType = "job.updated"

	EventRootSwitched EventType = "root.switched"

	EventThumbnailReady EventType = "thumbnail.ready"
)

// Event is a single published event.
type Event struct {
	Type      EventType   `json:"type"`
	Source    string      `json:"source,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Handler receives published events.
type Handler func(Event)

// EventBus publishes events to subscribed handlers.
type EventBus interface {
	Publish(Event)
	Subscribe(types []EventType, h Handler) (unsubscribe func())
	SubscribeAll(h Handler) (unsubscribe func())
}

type subscription struct {
	id      int
	types   map[EventType]bool // nil means all
	handler Handler
}

type bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]*subscription
}

// NewBus creates an in-memory event bus. Handlers run on the publisher's
// goroutine and must not block.
func NewBus() EventBus {
	return &bus{subs: make(map[int]*subscription)}
}

func (b *bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		if s.types == nil || s.types[e.Type] {
			s.handler(e)
		}
	}
}

func (b *bus) Subscribe(types []EventType, h Handler) func() {
	typeSet := make(map[EventType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}
	return b.add(&subscription{types: typeSet, handler: h})
}

func (b *bus) SubscribeAll(h Handler) func() {
	return b.add(&subscription{handler: h})
}

func (b *bus) add(s *subscription) func() {
	b.mu.Lock()
	b.nextID++
	s.id = b.nextID
	b.subs[s.id] = s
	b.mu.Unlock()

	id := s.id
	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
