package slideshow

import (
	"sync"

	"github.com/google/uuid"
)

// Broadcaster fans frames out to subscribers. Each subscriber holds at most
// one pending frame; a slow reader skips straight to the newest one and never
// blocks the publisher.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]chan Frame
	closed bool
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]chan Frame)}
}

// Subscribe registers a receiver. The channel is closed by the returned
// cancel func or when the broadcaster closes.
func (b *Broadcaster) Subscribe() (string, <-chan Frame, func()) {
	ch := make(chan Frame, 1)
	id := uuid.NewString()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch, func() {}
	}
	b.subs[id] = ch
	return id, ch, func() { b.unsubscribe(id) }
}

// Publish replaces each subscriber's pending frame with f.
func (b *Broadcaster) Publish(f Frame) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	for _, ch := range b.subs {
		select {
		case ch <- f:
			continue
		default:
		}
		// Full: drop the stale frame and retry once. Only Publish sends, and it
		// runs on a single goroutine, so the retry cannot race another sender.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- f:
		default:
		}
	}
}

// Len returns the number of live subscribers.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}
