package config

// SessionID is the sub-function id byte of a UDS DiagnosticSessionControl
// request, before the suppress-positive-response bit (0x80) is applied.
type SessionID byte

const (
	SessionDefault      SessionID = 0x01
	SessionProgramming  SessionID = 0x02
	SessionExtended     SessionID = 0x03
	SessionSafety       SessionID = 0x04
	SessionEOL          SessionID = 0x05
	SessionDevelopment  SessionID = 0x06
	// SessionManufacturerSpecific is left opaque on purpose: some OEMs use
	// a different id in the 0x40-0x5F range for this. Treat it as
	// configuration rather than a fixed protocol constant; the engine
	// attaches no special behavior to this particular value.
	SessionManufacturerSpecific SessionID = 0x41

	// SuppressPositiveResponseBit, OR'd into the sub-function byte on the
	// wire, requests the ECU skip the positive response.
	SuppressPositiveResponseBit byte = 0x80
)

// SessionType describes one diagnostic session kind: its wire id, display
// name, and the two behavioral flags the session engine and dispatch
// layer key off of.
type SessionType struct {
	ID                 SessionID
	Name               string
	RequiresSecurity   bool
	KeepAliveRequired  bool
}

var (
	SessionTypeDefault = SessionType{ID: SessionDefault, Name: "Default"}
	SessionTypeProgramming = SessionType{
		ID: SessionProgramming, Name: "Programming",
		RequiresSecurity: true, KeepAliveRequired: true,
	}
	SessionTypeExtended = SessionType{
		ID: SessionExtended, Name: "Extended", KeepAliveRequired: true,
	}
	SessionTypeSafety = SessionType{
		ID: SessionSafety, Name: "Safety",
		RequiresSecurity: true, KeepAliveRequired: true,
	}
	SessionTypeEOL         = SessionType{ID: SessionEOL, Name: "EndOfLine"}
	SessionTypeDevelopment = SessionType{ID: SessionDevelopment, Name: "Development"}
)

// ManufacturerSpecificSession builds an opaque manufacturer session type
// for the given id byte (typically, but not required to be,
// SessionManufacturerSpecific). keepAlive/security are supplied by the
// caller's vehicle profile since the core has no fixed opinion on them.
func ManufacturerSpecificSession(id SessionID, keepAlive, requiresSecurity bool) SessionType {
	return SessionType{
		ID: id, Name: "ManufacturerSpecific",
		RequiresSecurity: requiresSecurity, KeepAliveRequired: keepAlive,
	}
}

// SubFunctionByte encodes the wire sub-function byte for a
// DiagnosticSessionControl request: low 7 bits are the session id, bit 7
// is set when a suppressed positive response is requested.
func (s SessionType) SubFunctionByte(suppressPositiveResponse bool) byte {
	b := byte(s.ID) & 0x7F
	if suppressPositiveResponse {
		b |= SuppressPositiveResponseBit
	}
	return b
}
