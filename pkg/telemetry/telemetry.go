// Package telemetry is a bounded, single-producer multi-consumer event
// bus. The session engine publishes; nothing
// downstream of this package may block the producer, so delivery to a
// slow consumer is best-effort and subject to the bus's drop policy.
package telemetry

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// Kind enumerates the structured event categories a consumer can expect
// on the bus.
type Kind int

const (
	StateChanged Kind = iota
	MessageSent
	MessageReceived
	ErrorOccurred
	SessionStarted
	SessionEnded
	ProtocolDetected
	ECUDiscovered
	KeepAliveSent
	TimeoutOccurred
	SecurityAccessAttempted
	NegativeResponseReceived
	ConfigurationUpdated
	TransferProgress
)

func (k Kind) String() string {
	switch k {
	case StateChanged:
		return "StateChanged"
	case MessageSent:
		return "MessageSent"
	case MessageReceived:
		return "MessageReceived"
	case ErrorOccurred:
		return "ErrorOccurred"
	case SessionStarted:
		return "SessionStarted"
	case SessionEnded:
		return "SessionEnded"
	case ProtocolDetected:
		return "ProtocolDetected"
	case ECUDiscovered:
		return "ECUDiscovered"
	case KeepAliveSent:
		return "KeepAliveSent"
	case TimeoutOccurred:
		return "TimeoutOccurred"
	case SecurityAccessAttempted:
		return "SecurityAccessAttempted"
	case NegativeResponseReceived:
		return "NegativeResponseReceived"
	case ConfigurationUpdated:
		return "ConfigurationUpdated"
	case TransferProgress:
		return "TransferProgress"
	default:
		return "Unknown"
	}
}

// isError reports whether the bus must never drop an event of this kind.
func (k Kind) isError() bool {
	return k == ErrorOccurred || k == TimeoutOccurred || k == NegativeResponseReceived
}

// Event is one entry on the telemetry stream. Fields carries whatever
// structured context the producer wants to attach (service id, NRC,
// elapsed time, ...) using the same logrus.Fields shape the rest of this
// core logs with, so an event can be replayed straight into a logger.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Fields    log.Fields
}

// Bus fans published events out to every subscriber at publish time. Each
// subscriber gets its own bounded channel; a full channel drops the
// oldest non-error event to make room rather than blocking the producer,
// and never drops an error-class event.
type Bus struct {
	mu          sync.Mutex
	subscribers map[uint64]chan Event
	nextID      uint64
	capacity    int
}

// New creates a Bus whose per-subscriber channel holds up to capacity
// events before it starts dropping non-error events to make room.
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{subscribers: make(map[uint64]chan Event), capacity: capacity}
}

// Subscribe registers a new consumer and returns its channel plus a
// cancel function that unregisters it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.capacity)
	b.subscribers[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(existing)
		}
	}
	return ch, cancel
}

// Publish fans out ev to every current subscriber. It never blocks: a
// full subscriber channel is drained of its oldest event before the new
// one is pushed, unless ev is itself error-class and would be the one
// dropped — in that case an error-class event displaces the oldest
// entry in the channel regardless of that entry's own kind.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			if ev.Kind.isError() {
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- ev:
				default:
					log.WithField("subscriber", id).Warn("telemetry: dropped error event, subscriber channel saturated")
				}
			} else {
				log.WithFields(log.Fields{"subscriber": id, "kind": ev.Kind.String()}).Debug("telemetry: dropped event, subscriber channel full")
			}
		}
	}
}

// Emit is a convenience wrapper that stamps the current time and
// publishes in one call.
func (b *Bus) Emit(kind Kind, fields log.Fields) {
	b.Publish(Event{Kind: kind, Timestamp: time.Now(), Fields: fields})
}

// Close unregisters and closes every subscriber channel. Publish after
// Close is a safe no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
}
