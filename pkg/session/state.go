package session

import "obdcore.dev/pkg/config"

// ProtocolState is the engine's lifecycle sum type. Uninitialized leaves
// only via Initialize (to Ready) or Shutdown; Shutdown is terminal.
// Error is entered when the keep-alive is lost and leaves via Reset (to
// Ready) or Shutdown.
type ProtocolState int

const (
	Uninitialized ProtocolState = iota
	Ready
	SessionActive
	Error
	Shutdown
)

func (s ProtocolState) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Ready:
		return "Ready"
	case SessionActive:
		return "SessionActive"
	case Error:
		return "Error"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

// stateSnapshot is the value guarded by the engine's state mutex: the
// coarse ProtocolState plus, when SessionActive, which session type is
// live and what put the engine into Error.
type stateSnapshot struct {
	state       ProtocolState
	sessionType config.SessionType
	errCause    error
}
