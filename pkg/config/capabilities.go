package config

import "obdcore.dev/pkg/protocoltype"

// Capabilities is a derived, read-only view of what a given protocol (and,
// where noted, a session layered on top of it) supports. Nothing here is
// ever mutated in place; CapabilitiesFor recomputes a fresh value on every
// call so two callers can't see each other's derived state diverge.
type Capabilities struct {
	Protocol protocoltype.Type

	MaxSingleFrameLength int
	MaxReassembledLength int

	SupportedServices []byte
	SupportedBaudRates []int

	SupportsKeepAlive     bool
	SupportsSecurity      bool
	SupportsRoutine       bool
	SupportsIOControl     bool
	SupportsProgramming   bool
	SupportsCoding        bool
	RequiresInitialization bool
}

// obdServices is the SAE J1979 subset every protocol except J1939 (which
// is PGN-addressed) supports; UDS-range
// services (security access, routine control, DID I/O, coding) are added
// per-protocol below since KWP/J1850/ISO9141 variants don't carry them in
// practice even though nothing prevents it on the wire.
var obdServices = []byte{0x01, 0x02, 0x03, 0x04, 0x07, 0x09, 0x0A}
var udsServices = []byte{0x10, 0x11, 0x14, 0x19, 0x22, 0x27, 0x2E, 0x31, 0x3E}

// CapabilitiesFor derives the capability set for protocol. Session-layer
// requirements (keep-alive, security) come from the session type actually
// negotiated, not guessed from the protocol alone; pass the zero
// SessionType to get the protocol-only view (used by the detector, which
// runs before any session exists).
func CapabilitiesFor(protocol protocoltype.Type, session SessionType) (Capabilities, error) {
	row, err := protocoltype.Lookup(protocol)
	if err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{
		Protocol:             protocol,
		MaxSingleFrameLength: row.MaxSingleFrame,
		MaxReassembledLength: row.MaxReassembled,
		SupportedBaudRates:   []int{row.BaudRate},
		RequiresInitialization: row.Requires5Baud,
	}

	switch row.Category {
	case protocoltype.CategoryCAN:
		caps.SupportedServices = append(append([]byte{}, obdServices...), udsServices...)
		caps.SupportsSecurity = true
		caps.SupportsRoutine = true
		caps.SupportsIOControl = true
		caps.SupportsProgramming = true
		caps.SupportsCoding = true
	case protocoltype.CategoryKWP, protocoltype.CategoryISO9141:
		caps.SupportedServices = append(append([]byte{}, obdServices...), 0x10, 0x27, 0x31)
		caps.SupportsSecurity = true
		caps.SupportsRoutine = true
	case protocoltype.CategoryJ1850:
		caps.SupportedServices = append([]byte{}, obdServices...)
	case protocoltype.CategoryJ1939:
		caps.SupportedServices = []byte{0x00} // PGN-addressed, not service-id addressed
	}

	caps.SupportsKeepAlive = session.KeepAliveRequired

	return caps, nil
}
