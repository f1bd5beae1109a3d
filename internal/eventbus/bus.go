// Package eventbus fans reminder lifecycle events out to in-process
// listeners such as the audit log.
package eventbus

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus delivers each event to every subscriber that has room for it.
// Publish never waits; events for a full subscriber are counted and lost.
type Bus struct {
	mu      sync.Mutex
	subs    []chan Event
	dropped atomic.Uint64
}

func New() *Bus { return &Bus{} }

// Publish is a no-op on a nil Bus.
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel with room for buffer events (at least one)
// and a func that detaches and closes it. The func may be called repeatedly.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, max(buffer, 1))
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			b.subs = slices.DeleteFunc(b.subs, func(c chan Event) bool { return c == ch })
			b.mu.Unlock()
			close(ch)
		})
	}
}

// Dropped counts deliveries lost to full subscribers.
func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
