package obdcore

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

type frameSubscriber struct {
	id       uint64
	listener FrameListener
}

// FrameRouter demultiplexes frames from a CANBus to per-CAN-id subscribers.
// It exists for the opt-in direct-CAN path: when an adapter exposes a
// native CAN interface instead of an AT-command byte stream, the
// native-CAN exchanger (pkg/transport/cannative) subscribes through here
// and feeds its ISO-TP assembler instead of parsing hex out of an ELM327
// response.
type FrameRouter struct {
	mu        sync.Mutex
	bus       CANBus
	listeners map[uint32][]frameSubscriber
	nextSubID uint64
}

// NewFrameRouter wraps bus, which may be nil until SetBus is called.
func NewFrameRouter(bus CANBus) *FrameRouter {
	return &FrameRouter{bus: bus, listeners: make(map[uint32][]frameSubscriber)}
}

// SetBus swaps the underlying CAN bus, e.g. after a reconnect.
func (r *FrameRouter) SetBus(bus CANBus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bus = bus
}

// Handle implements FrameListener; it fans a received frame out to every
// subscriber registered for that CAN id. Must not block.
func (r *FrameRouter) Handle(frame Frame) {
	r.mu.Lock()
	subs := append([]frameSubscriber(nil), r.listeners[frame.ID]...)
	r.mu.Unlock()
	for _, sub := range subs {
		sub.listener.Handle(frame)
	}
}

// Send transmits a frame on the underlying bus.
func (r *FrameRouter) Send(frame Frame) error {
	r.mu.Lock()
	bus := r.bus
	r.mu.Unlock()
	if bus == nil {
		return ErrNotConnected
	}
	if err := bus.Send(frame); err != nil {
		log.WithError(err).Warn("obdcore: frame send failed")
		return err
	}
	return nil
}

// Subscribe registers listener for frames with the given CAN id. The
// returned cancel func removes the subscription.
func (r *FrameRouter) Subscribe(id uint32, listener FrameListener) (cancel func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextSubID++
	subID := r.nextSubID
	r.listeners[id] = append(r.listeners[id], frameSubscriber{id: subID, listener: listener})

	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		subs := r.listeners[id]
		for i, sub := range subs {
			if sub.id == subID {
				r.listeners[id] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}
