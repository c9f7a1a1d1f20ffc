package obdcore

import "errors"

// Sentinel errors shared across the core. Variants that need structured
// context (NRC byte, service id, elapsed time, ...) are typed errors
// declared next to the package that raises them instead of living here.
var (
	ErrIllegalArgument = errors.New("obdcore: error in function arguments")
	ErrTimeout         = errors.New("obdcore: function timeout")
	ErrNotConnected    = errors.New("obdcore: byte stream is not connected")
	ErrInvalidState    = errors.New("obdcore: operation not valid in current state")
	ErrShutdown        = errors.New("obdcore: engine is shut down")
	ErrBusy            = errors.New("obdcore: exclusive resource already in use")
)
