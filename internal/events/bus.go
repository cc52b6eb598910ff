// Package events implements the node's typed event fan-out: a single
// producer (the chain engine) broadcasting to any number of subscribers,
// each with an independent bounded backlog and a drop-oldest overflow
// policy.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/pulse-net/pulse-chain/pkg/types"
)

// Event type discriminators as they appear on the wire.
const (
	TypeNewBlock       = "new_block"
	TypeStats          = "stats"
	TypeHeartbeatCount = "heartbeat_count"
)

// Event is one bus message.
type Event interface {
	// Type returns the wire discriminator.
	Type() string
}

// NewBlock is published after a block commits.
type NewBlock struct {
	Block *types.PulseBlock `json:"block"`
}

// Type returns the wire discriminator.
func (NewBlock) Type() string { return TypeNewBlock }

// Stats is published after a block commits, with refreshed network stats.
type Stats struct {
	Stats *types.NetworkStats `json:"stats"`
}

// Type returns the wire discriminator.
func (Stats) Type() string { return TypeStats }

// HeartbeatCount is published after each accepted heartbeat, carrying the
// current pool size.
type HeartbeatCount struct {
	Count uint64 `json:"count"`
}

// Type returns the wire discriminator.
func (HeartbeatCount) Type() string { return TypeHeartbeatCount }

// DefaultBacklog is the per-subscriber queue capacity.
const DefaultBacklog = 64

// Subscription is one subscriber's handle on the bus.
type Subscription struct {
	id  uint64
	ch  chan Event
	lag atomic.Uint64
}

// Events returns the subscriber's receive channel. It is closed when the
// subscription is cancelled or the bus shuts down.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Lag returns how many events have been dropped for this subscriber because
// its backlog was full.
func (s *Subscription) Lag() uint64 {
	return s.lag.Load()
}

// Bus broadcasts events to subscribers. Publishing never blocks and takes no
// locks: the subscriber set is an immutable snapshot swapped atomically on
// subscribe/unsubscribe.
type Bus struct {
	mu      sync.Mutex // Guards subscribe/unsubscribe/close transitions.
	subs    atomic.Pointer[map[uint64]*Subscription]
	nextID  atomic.Uint64
	backlog int
	closed  bool
}

// New creates a bus with the given per-subscriber backlog capacity
// (DefaultBacklog if capacity <= 0).
func New(backlog int) *Bus {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	b := &Bus{backlog: backlog}
	empty := make(map[uint64]*Subscription)
	b.subs.Store(&empty)
	return b
}

// Subscribe registers a new subscriber. Returns nil if the bus is closed.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}

	sub := &Subscription{
		id: b.nextID.Add(1),
		ch: make(chan Event, b.backlog),
	}

	old := *b.subs.Load()
	next := make(map[uint64]*Subscription, len(old)+1)
	for id, s := range old {
		next[id] = s
	}
	next[sub.id] = sub
	b.subs.Store(&next)
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	old := *b.subs.Load()
	if _, ok := old[sub.id]; !ok {
		return
	}
	next := make(map[uint64]*Subscription, len(old)-1)
	for id, s := range old {
		if id != sub.id {
			next[id] = s
		}
	}
	b.subs.Store(&next)
	close(sub.ch)
}

// Publish delivers ev to every subscriber. If a subscriber's backlog is
// full, its oldest queued event is dropped and the lag counter incremented;
// other subscribers are unaffected. Publish may be called concurrently; if
// the retried send still finds the backlog full, the new event is dropped
// and counted in the lag instead.
func (b *Bus) Publish(ev Event) {
	for _, sub := range *b.subs.Load() {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		// Backlog full: drop the oldest, then retry once.
		select {
		case <-sub.ch:
			sub.lag.Add(1)
		default:
		}
		select {
		case sub.ch <- ev:
		default:
			sub.lag.Add(1)
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	return len(*b.subs.Load())
}

// Close shuts the bus down and closes every subscriber channel. Further
// Subscribe calls return nil; further Publish calls are no-ops. The caller
// must stop the producer before closing.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	old := *b.subs.Load()
	empty := make(map[uint64]*Subscription)
	b.subs.Store(&empty)
	for _, sub := range old {
		close(sub.ch)
	}
}
