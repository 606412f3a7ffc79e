// Package publisher implements the multi-subscriber state-transition
// broadcast spec §4.6 calls for. It is modeled on the teacher's
// internal/core/log/streamer.go Subscribe/Unsubscribe/notifySubscribers
// shape, repointed at coarse-grained program states instead of log lines.
package publisher

import (
	"sync"

	"github.com/google/uuid"
)

// subscriberBuffer bounds how many un-consumed transitions a slow
// subscriber can fall behind by before older ones are coalesced away. A
// subscriber never observes an out-of-order pair: dropped transitions are
// always the oldest buffered ones, never reordered with what remains.
const subscriberBuffer = 8

// Publisher broadcasts values of type T to any number of subscribers and
// exposes the current value synchronously. T is the ProgramState in this
// module but the type is kept generic so tests don't need an engine import.
type Publisher[T any] struct {
	mu      sync.RWMutex
	current T
	subs    map[string]chan T
}

// New creates a Publisher whose initial current value is the zero value of
// T; call Publish once to set a real starting state before any command is
// issued.
func New[T any]() *Publisher[T] {
	return &Publisher[T]{subs: make(map[string]chan T)}
}

// Subscribe registers a new subscriber and returns its id (for Unsubscribe)
// and a receive-only channel of future transitions. Late subscribers do not
// see transitions published before they subscribed — they should call
// Current() to read the present state.
func (p *Publisher[T]) Subscribe() (string, <-chan T) {
	id := uuid.NewString()
	ch := make(chan T, subscriberBuffer)

	p.mu.Lock()
	p.subs[id] = ch
	p.mu.Unlock()

	return id, ch
}

// Unsubscribe removes and closes a subscriber's channel. Idempotent.
func (p *Publisher[T]) Unsubscribe(id string) {
	p.mu.Lock()
	ch, ok := p.subs[id]
	if ok {
		delete(p.subs, id)
	}
	p.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish records value as the current state and delivers it to every
// subscriber. A subscriber whose buffer is full has its oldest buffered
// transition dropped to make room — never reordered, just coalesced.
func (p *Publisher[T]) Publish(value T) {
	p.mu.Lock()
	p.current = value
	subs := make([]chan T, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- value:
			continue
		default:
		}
		// Buffer full: drop the oldest buffered transition to make room,
		// then deliver the latest one. If another goroutine drained the
		// channel in between, the send below still succeeds non-blocking.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- value:
		default:
		}
	}
}

// Current returns the most recently published value.
func (p *Publisher[T]) Current() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// SubscriberCount reports the number of active subscribers (diagnostic use).
func (p *Publisher[T]) SubscriberCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}
