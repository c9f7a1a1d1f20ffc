package isotp

import "fmt"

// SequenceError is raised when a Consecutive Frame's sequence number
// doesn't match (prevSN+1) mod 16. The in-flight message is discarded and
// the assembler returns to idle; this is never retried automatically.
type SequenceError struct {
	Expected byte
	Got      byte
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("isotp: sequence error, expected SN %d got %d", e.Expected, e.Got)
}

// TimeoutError is raised when a Consecutive Frame doesn't arrive within
// N_Cr of the previous frame, or when a sender stalls past N_Bs waiting
// for a Flow Control.
type TimeoutError struct {
	Stage string // "N_Cr" or "N_Bs"
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("isotp: %s timeout", e.Stage)
}

// OverflowError is raised when the peer's Flow Control reports Overflow.
type OverflowError struct{}

func (e *OverflowError) Error() string { return "isotp: flow control reported overflow" }

// UnexpectedFrameError is raised for a frame that doesn't fit the
// assembler's current state (e.g. a Consecutive Frame while Idle).
type UnexpectedFrameError struct {
	State string
	Kind  FrameKind
}

func (e *UnexpectedFrameError) Error() string {
	return fmt.Sprintf("isotp: unexpected frame kind %d while %s", e.Kind, e.State)
}
