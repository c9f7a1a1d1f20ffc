package isotp

import (
	"time"

	log "github.com/sirupsen/logrus"
)

// SendFunc transmits one raw ISO-TP frame's bytes on the bus.
type SendFunc func(frame []byte) error

// AwaitFlowControlFunc blocks until a Flow Control frame arrives or
// timeout elapses, returning the decoded frame.
type AwaitFlowControlFunc func(timeout time.Duration) (Frame, error)

// SendSegmented transmits payload as an ISO-TP frame train, honoring
// Flow Control from the peer: Wait resets the N_Bs stall timer, Overflow
// aborts with OverflowError, and Continue resumes sending using the
// peer's reported block size and separation time (overriding the
// defaults this sender started with).
//
// Exactly one segmented send is in flight at a time per caller, matching
// the "one outstanding segmented send per address pair" invariant; this
// function does not itself enforce that, since it has no notion of
// address pairs — the session engine's message_mutex is what serializes
// calls to it.
func SendSegmented(payload []byte, send SendFunc, awaitFC AwaitFlowControlFunc, nBs time.Duration) error {
	frames, err := Encode(payload)
	if err != nil {
		return err
	}
	if len(frames) == 1 {
		return send(frames[0])
	}

	if err := send(frames[0]); err != nil {
		return err
	}

	blockSize := byte(0)
	stmin := time.Duration(0)

	cfs := frames[1:]
	for len(cfs) > 0 {
		fc, err := awaitFC(nBs)
		if err != nil {
			return &TimeoutError{Stage: "N_Bs"}
		}
		if fc.Kind != KindFlowControl {
			log.Warnf("isotp: expected flow control, got frame kind %d", fc.Kind)
			continue
		}
		switch fc.Status {
		case FlowOverflow:
			return &OverflowError{}
		case FlowWait:
			continue
		case FlowContinue:
			blockSize = fc.BlockSize
			ms, isMicros, err := DecodeSeparationTime(fc.SeparationTime)
			if err != nil {
				return err
			}
			if isMicros {
				stmin = time.Duration(ms) * time.Microsecond
			} else {
				stmin = time.Duration(ms) * time.Millisecond
			}
		}

		sendCount := len(cfs)
		if blockSize > 0 && int(blockSize) < sendCount {
			sendCount = int(blockSize)
		}
		for i := 0; i < sendCount; i++ {
			if err := send(cfs[i]); err != nil {
				return err
			}
			if stmin > 0 && i < sendCount-1 {
				time.Sleep(stmin)
			}
		}
		cfs = cfs[sendCount:]
	}

	return nil
}
