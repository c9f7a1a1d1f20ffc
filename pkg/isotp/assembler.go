package isotp

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the assembler's reassembly state.
type State int

const (
	StateIdle State = iota
	StateReceiving
)

func (s State) String() string {
	if s == StateReceiving {
		return "Receiving"
	}
	return "Idle"
}

// Assembler reassembles one ISO-TP message at a time for a single
// (local-address, remote-address) pair. It is not safe for concurrent
// use; callers that multiplex several address pairs own one Assembler per
// pair, the same way the session engine keys its exchange state off a
// single in-flight request.
type Assembler struct {
	state State

	totalLength int
	received    []byte
	expectedSN  byte
	lastFrameAt time.Time

	// N_Cr is the max gap allowed between Consecutive Frames.
	N_Cr time.Duration

	blockSize      byte
	separationTime byte

	// SendFlowControl transmits a Flow Control frame; nil disables
	// sending one (useful for assemblers fed by already-reassembled
	// captures in tests).
	SendFlowControl func(frame []byte) error
}

// NewAssembler constructs an idle assembler. ncr is the N_Cr timeout
// (default 1000ms per spec); blockSize/separationTime are echoed back to
// the sender in every Flow Control this assembler emits.
func NewAssembler(ncr time.Duration, blockSize, separationTime byte) *Assembler {
	if ncr <= 0 {
		ncr = time.Second
	}
	return &Assembler{state: StateIdle, N_Cr: ncr, blockSize: blockSize, separationTime: separationTime}
}

// Feed processes one incoming frame at time now. It returns (message,
// true, nil) when a complete message has just been reassembled (or was
// delivered immediately, for a Single Frame); otherwise message is nil.
func (a *Assembler) Feed(frame Frame, now time.Time) ([]byte, bool, error) {
	switch a.state {
	case StateIdle:
		switch frame.Kind {
		case KindSingle:
			return append([]byte{}, frame.Payload...), true, nil
		case KindFirst:
			a.totalLength = frame.TotalLength
			a.received = append([]byte{}, frame.FirstBytes...)
			if len(a.received) > a.totalLength {
				a.received = a.received[:a.totalLength]
			}
			a.expectedSN = 1
			a.lastFrameAt = now
			a.state = StateReceiving
			if a.SendFlowControl != nil {
				fc := EncodeFlowControl(FlowContinue, a.blockSize, a.separationTime)
				if err := a.SendFlowControl(fc); err != nil {
					log.WithError(err).Warn("isotp: failed to send flow control")
				}
			}
			if len(a.received) >= a.totalLength {
				msg := a.received
				a.reset()
				return msg, true, nil
			}
			return nil, false, nil
		default:
			return nil, false, &UnexpectedFrameError{State: a.state.String(), Kind: frame.Kind}
		}

	case StateReceiving:
		if frame.Kind != KindConsecutive {
			a.reset()
			return nil, false, &UnexpectedFrameError{State: StateReceiving.String(), Kind: frame.Kind}
		}
		if now.Sub(a.lastFrameAt) > a.N_Cr {
			a.reset()
			return nil, false, &TimeoutError{Stage: "N_Cr"}
		}
		if frame.SequenceNumber != a.expectedSN {
			err := &SequenceError{Expected: a.expectedSN, Got: frame.SequenceNumber}
			a.reset()
			return nil, false, err
		}

		remaining := a.totalLength - len(a.received)
		chunk := frame.CFPayload
		if len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		a.received = append(a.received, chunk...)
		a.lastFrameAt = now
		a.expectedSN = (a.expectedSN + 1) % 16

		if len(a.received) >= a.totalLength {
			msg := a.received
			a.reset()
			return msg, true, nil
		}
		return nil, false, nil
	}

	return nil, false, &UnexpectedFrameError{State: a.state.String(), Kind: frame.Kind}
}

// Abort discards any in-flight reassembly and returns to Idle, e.g. when
// the session engine cancels an exchange mid-transfer.
func (a *Assembler) Abort() { a.reset() }

func (a *Assembler) reset() {
	a.state = StateIdle
	a.totalLength = 0
	a.received = nil
	a.expectedSN = 0
}

// InProgress reports whether a reassembly is in flight.
func (a *Assembler) InProgress() bool { return a.state == StateReceiving }
