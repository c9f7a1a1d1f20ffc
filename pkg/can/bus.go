// Package can is the registry for direct CAN bus backends that can back
// the ISO-TP frame layer without going through an ELM327-style byte
// stream: a SocketCAN interface, or the virtual TCP bus used in tests.
// It mirrors the teacher's plugin-registry pattern, but builds
// obdcore.CANBus values instead of CANopen's.
package can

import (
	"fmt"

	"obdcore.dev"
)

// NewInterfaceFunc constructs a obdcore.CANBus bound to channel (an
// interface name for SocketCAN, a host:port for the virtual bus).
type NewInterfaceFunc func(channel string) (obdcore.CANBus, error)

var interfaceRegistry = make(map[string]NewInterfaceFunc)

// ImplementedInterfaces lists the backend names a caller can pass to NewBus.
// Populated by the init() of each backend subpackage as it's imported.
var ImplementedInterfaces []string

// RegisterInterface makes a CAN backend available under interfaceType.
// Called from the init() of a backend subpackage (socketcan, virtual).
func RegisterInterface(interfaceType string, newInterface NewInterfaceFunc) {
	interfaceRegistry[interfaceType] = newInterface
	ImplementedInterfaces = append(ImplementedInterfaces, interfaceType)
}

// NewBus constructs a CAN bus for the named backend. bitrate is accepted
// but not passed to any backend.
func NewBus(canInterface string, channel string, bitrate int) (obdcore.CANBus, error) {
	createInterface, ok := interfaceRegistry[canInterface]
	if !ok {
		return nil, fmt.Errorf("obdcore: unsupported CAN interface %q", canInterface)
	}
	return createInterface(channel)
}
