// Package event fans job events out to in-process subscribers and, when
// configured, to a Redis channel.
package event

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
)

// AllEvents subscribes a handler to every event name.
const AllEvents = "*"

type Handler func(ctx context.Context, event core.JobEvent) error

type Bus interface {
	Publish(ctx context.Context, event core.JobEvent) error
	Subscribe(name string, handler Handler) (unsubscribe func())
}

// NewBus creates an in-process event bus. Handlers run synchronously in
// subscription order; their errors are logged, never returned.
func NewBus() Bus {
	return &inProcessBus{
		subscribers: make(map[string][]subscriberEntry),
	}
}

type subscriberEntry struct {
	id      uint64
	handler Handler
}

type inProcessBus struct {
	mu          sync.RWMutex
	subscribers map[string][]subscriberEntry
	nextID      uint64
}

func (b *inProcessBus) Publish(ctx context.Context, event core.JobEvent) error {
	name := event.Name()

	b.mu.RLock()
	subs := make([]subscriberEntry, 0, len(b.subscribers[name])+len(b.subscribers[AllEvents]))
	subs = append(subs, b.subscribers[name]...)
	subs = append(subs, b.subscribers[AllEvents]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.handler(ctx, event); err != nil {
			log.Error().Err(err).
				Str("event", name).
				Str("job_id", event.JobID).
				Msg("event handler error")
		}
	}
	return nil
}

func (b *inProcessBus) Subscribe(name string, handler Handler) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subscribers[name] = append(b.subscribers[name], subscriberEntry{
		id:      id,
		handler: handler,
	})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subscribers[name]
		for i, s := range subs {
			if s.id == id {
				b.subscribers[name] = append(subs[:i:i], subs[i+1:]...)
				break
			}
		}
	}
}
