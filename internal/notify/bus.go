// Package notify propagates store mutations to other open views.
//
// Same-process observers get a synchronous callback (Local); other
// processes observe an asynchronous event over Redis pub/sub (RedisBus),
// the analogue of a cross-tab storage notification. Fanout composes both
// so a store writes through one Bus and never knows who is listening.
package notify

import (
	"context"
	"sync"
)

// Event carries the store key that changed and its new serialized value.
type Event struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// Bus is the publish/subscribe boundary between the session store and
// everything that renders it.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe registers a handler and returns a cancel func.
	Subscribe(fn func(Event)) (cancel func())
}

// Local delivers events synchronously to in-process subscribers.
type Local struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

// NewLocal creates an empty in-process bus.
func NewLocal() *Local {
	return &Local{subs: make(map[int]func(Event))}
}

// Publish invokes every subscriber before returning.
func (l *Local) Publish(_ context.Context, evt Event) error {
	l.mu.RLock()
	handlers := make([]func(Event), 0, len(l.subs))
	for _, fn := range l.subs {
		handlers = append(handlers, fn)
	}
	l.mu.RUnlock()
	for _, fn := range handlers {
		fn(evt)
	}
	return nil
}

// Subscribe registers fn until the returned cancel func runs.
func (l *Local) Subscribe(fn func(Event)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = fn
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}

// Fanout publishes through every bus and subscribes on every bus.
type Fanout struct {
	Buses []Bus
}

// NewFanout composes buses into one.
func NewFanout(buses ...Bus) *Fanout {
	return &Fanout{Buses: buses}
}

// Publish forwards to all buses, returning the first error after trying each.
func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	var firstErr error
	for _, b := range f.Buses {
		if err := b.Publish(ctx, evt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Subscribe registers fn on all buses.
func (f *Fanout) Subscribe(fn func(Event)) func() {
	cancels := make([]func(), 0, len(f.Buses))
	for _, b := range f.Buses {
		cancels = append(cancels, b.Subscribe(fn))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
