package session

import (
	"sync"
	"sync/atomic"

	"github.com/bobmcallan/lingqian/internal/divination"
)

// EventType names the kind of an Event on the wire.
type EventType string

const (
	EventPhase  EventType = "phase"
	EventResult EventType = "result"
	EventError  EventType = "error"
)

// Event is one message pushed to a session's subscribers.
type Event struct {
	Type     EventType            `json:"type"`
	Snapshot *divination.Snapshot `json:"snapshot,omitempty"`
	Message  string               `json:"message,omitempty"`
}

// Broker fans machine events out to subscribers. It implements
// divination.Listener. Publishing never blocks: a subscriber whose buffer
// is full misses the event.
type Broker struct {
	mu      sync.Mutex
	subs    map[int]chan Event
	nextID  int
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewBroker creates a broker whose subscriber channels hold buffer events.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe registers a subscriber. The returned func unsubscribes and is
// safe to call more than once. On a closed broker the channel is already closed.
func (b *Broker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Broker) Publish(e Event) {
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

// Close closes every subscriber channel. Later publishes are dropped.
func (b *Broker) Close() {
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

// Subscribers returns the number of live subscribers.
func (b *Broker) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the number of events discarded for full buffers.
func (b *Broker) Dropped() int64 {
	return b.dropped.Load()
}

func (b *Broker) OnPhaseChange(s divination.Snapshot) {
	b.Publish(Event{Type: EventPhase, Snapshot: &s})
}

func (b *Broker) OnDrawComplete(s divination.Snapshot) {
	b.Publish(Event{Type: EventResult, Snapshot: &s})
}

func (b *Broker) OnError(err error) {
	b.Publish(Event{Type: EventError, Message: err.Error()})
}
