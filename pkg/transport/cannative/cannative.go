// Package cannative implements session.Exchanger directly on top of a
// obdcore.CANBus, for adapters that expose a native CAN pass-through
// (SocketCAN, a J2534 shim, the virtual TCP bus used in tests) instead of
// an ELM327 AT-command byte stream. It is the one production path that
// pushes traffic through the ISO-TP frame layer: the request is segmented
// with isotp.SendSegmented and the response reassembled with an
// isotp.Assembler, both driven off frames the obdcore.FrameRouter
// demultiplexes by CAN id.
package cannative

import (
	"fmt"
	"time"

	"obdcore.dev"
	"obdcore.dev/pkg/isotp"
	"obdcore.dev/pkg/protocoltype"
)

// Exchanger bridges one (request id, response id) CAN address pair to the
// session engine. Unlike adapter.Driver, it needs no Configure step beyond
// what the protocol row already fixed at construction time: the physical
// bus's bitrate and addressing are a property of the wiring, not something
// an AT-command profile selects after the fact.
type Exchanger struct {
	router *obdcore.FrameRouter
	row    protocoltype.Row

	requestID  uint32
	responseID uint32

	blockSize      byte
	separationTime byte
}

// New builds an Exchanger that sends on row.RequestAddr and listens for
// row.ResponseAddr via router. router's underlying bus must already be
// connected.
func New(router *obdcore.FrameRouter, row protocoltype.Row) *Exchanger {
	return &Exchanger{
		router:     router,
		row:        row,
		requestID:  row.RequestAddr,
		responseID: row.ResponseAddr,
	}
}

// Configure satisfies session.Exchanger but is a no-op: a native CAN
// interface has no AT-command layer to program. The profile is accepted
// and ignored rather than rejected, so callers built around the
// Configure/Exchange pair don't need a transport-specific branch.
func (e *Exchanger) Configure(profile []string, timeout time.Duration) error {
	return nil
}

// Exchange segments payload into an ISO-TP frame train, transmits it on
// the CAN bus, and reassembles the response. It is the frame layer's only
// production caller: every multi-frame OBD/UDS message on a native CAN
// transport flows through isotp.Encode/SendSegmented on the way out and
// isotp.Assembler on the way back.
func (e *Exchanger) Exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	frames := make(chan obdcore.Frame, 32)
	cancel := e.router.Subscribe(e.responseID, frameChan(frames))
	defer cancel()

	send := e.sendFunc()
	awaitFC := func(fcTimeout time.Duration) (isotp.Frame, error) {
		select {
		case f := <-frames:
			return isotp.Decode(f.Data[:f.DLC])
		case <-time.After(fcTimeout):
			return isotp.Frame{}, fmt.Errorf("cannative: flow control wait timed out")
		}
	}

	if err := isotp.SendSegmented(payload, send, awaitFC, timeout); err != nil {
		return nil, fmt.Errorf("cannative: segmented send to 0x%X: %w", e.requestID, err)
	}

	assembler := isotp.NewAssembler(timeout, e.blockSize, e.separationTime)
	assembler.SendFlowControl = send

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("cannative: response from 0x%X timed out", e.responseID)
		}
		select {
		case f := <-frames:
			decoded, err := isotp.Decode(f.Data[:f.DLC])
			if err != nil {
				return nil, err
			}
			msg, done, err := assembler.Feed(decoded, time.Now())
			if err != nil {
				return nil, fmt.Errorf("cannative: reassembly from 0x%X: %w", e.responseID, err)
			}
			if done {
				return msg, nil
			}
		case <-time.After(remaining):
			return nil, fmt.Errorf("cannative: response from 0x%X timed out", e.responseID)
		}
	}
}

// sendFunc pads (when the protocol row requires it) and transmits one raw
// ISO-TP frame as a CAN frame addressed to requestID.
func (e *Exchanger) sendFunc() isotp.SendFunc {
	return func(frame []byte) error {
		data := frame
		if e.row.DefaultPadding {
			data = isotp.Pad(frame, e.row.DefaultPaddingByte)
		}
		var payload [8]byte
		n := copy(payload[:], data)
		return e.router.Send(obdcore.Frame{
			ID:       e.requestID,
			Extended: e.row.BitWidth == 29,
			DLC:      uint8(n),
			Data:     payload,
		})
	}
}

// frameChan adapts a channel to obdcore.FrameListener, dropping a frame
// rather than blocking the router's dispatch loop if the reader falls
// behind.
type frameChan chan obdcore.Frame

func (c frameChan) Handle(frame obdcore.Frame) {
	select {
	case c <- frame:
	default:
	}
}
