// Package broadcast provides a latest-value publish/subscribe hub whose
// publishers never block.
//
// Each subscriber owns a buffered channel. When a subscriber falls behind,
// its oldest buffered value is dropped so that the newest value is always
// delivered. New subscribers receive the latest published value immediately.
package broadcast

import (
	"sync"
)

// Broadcaster fans values out to subscribers. It is safe for concurrent use.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[uint64]chan T
	nextID uint64
	latest T
	has    bool
	closed bool
}

// New creates an empty broadcaster.
func New[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[uint64]chan T),
	}
}

// Subscribe registers a subscriber with the given buffer size (minimum 1).
// The returned cancel function unregisters it and closes the channel; it may
// be called more than once. Subscribing to a closed broadcaster returns a
// closed channel.
func (b *Broadcaster[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan T, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	if b.has {
		ch <- b.latest
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// Publish delivers v to every subscriber without blocking.
func (b *Broadcaster[T]) Publish(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.latest = v
	b.has = true

	for _, ch := range b.subs {
		deliver(ch, v)
	}
}

// deliver sends v, evicting the oldest buffered value when ch is full.
// Callers hold the broadcaster lock, so no other sender races on ch.
func deliver[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Latest returns the most recently published value.
func (b *Broadcaster[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.has
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
