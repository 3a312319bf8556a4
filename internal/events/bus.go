package events

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DropPolicy selects which event is lost when a subscriber buffer is
// full. Either way, Publish never blocks.
type DropPolicy string

const (
	// DropOldest evicts the oldest buffered event to make room.
	DropOldest DropPolicy = "oldest"
	// DropNewest discards the incoming event.
	DropNewest DropPolicy = "newest"
)

// Filter narrows a subscription. Zero value matches every event.
type Filter struct {
	Types    []EventType
	TicketID string
}

func (f Filter) matches(event Event) bool {
	if f.TicketID != "" && f.TicketID != event.TicketID {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == event.Type {
			return true
		}
	}
	return false
}

// Subscription is one observer's view of the bus. Events matching the
// filter arrive on C in publish order until Close is called or the
// bus shuts down.
type Subscription struct {
	id      int64
	filter  Filter
	ch      chan Event
	bus     *Bus
	dropped atomic.Int64
	once    sync.Once
}

// C returns the receive channel. It is closed when the subscription
// or the bus closes.
func (s *Subscription) C() <-chan Event { return s.ch }

// Dropped returns how many events this subscriber has lost to its
// buffer limit.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus is the in-process event bus. Each subscriber owns a bounded
// buffer; a stalled subscriber loses events according to the drop
// policy but never delays the publisher. Events published for one
// ticket arrive at every subscriber in publish order.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int64]*Subscription
	nextID  int64
	buffer  int
	policy  DropPolicy
	logger  *zap.Logger
	closed  bool
	counter atomic.Int64
}

// NewBus creates a bus with the given per-subscriber buffer size and
// drop policy. A non-positive buffer falls back to 1.
func NewBus(buffer int, policy DropPolicy, logger *zap.Logger) *Bus {
	if buffer <= 0 {
		buffer = 1
	}
	if policy != DropOldest && policy != DropNewest {
		policy = DropOldest
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[int64]*Subscription),
		buffer: buffer,
		policy: policy,
		logger: logger,
	}
}

// Subscribe registers an observer. Always pair with Close.
func (b *Bus) Subscribe(filter Filter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		filter: filter,
		ch:     make(chan Event, b.buffer),
		bus:    b,
	}
	if b.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Publish delivers the event to every matching subscriber without
// blocking. Delivery to a full buffer follows the drop policy.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.counter.Add(1)
	for _, sub := range b.subs {
		if !sub.filter.matches(event) {
			continue
		}
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub *Subscription, event Event) {
	if b.policy == DropNewest {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber buffer full",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID))
		}
		return
	}
	for {
		select {
		case sub.ch <- event:
			return
		default:
		}
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
			b.logger.Warn("event dropped, subscriber buffer full",
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID))
		default:
		}
	}
}

// Published returns the total number of events accepted by the bus.
func (b *Bus) Published() int64 { return b.counter.Load() }

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; ok {
		delete(b.subs, sub.id)
		sub.once.Do(func() { close(sub.ch) })
	}
}

// Close shuts the bus down and closes every subscriber channel.
// Publish becomes a no-op afterwards.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		sub.once.Do(func() { close(sub.ch) })
	}
}
