package session

import "time"

// Direction distinguishes a request the engine sent from a response it
// received.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// DiagnosticMessage is one framed exchange leg: a request or a response,
// with the negative-response flag and NRC broken out so callers never
// have to re-parse service_id == 0x7F themselves.
type DiagnosticMessage struct {
	ServiceID   byte
	SubFunction byte
	HasSubFunction bool
	Payload     []byte

	Direction Direction

	Negative bool
	NRC      byte

	SourceAddr uint32
	TargetAddr uint32
	HasAddressing bool

	// Sequence is assigned by the engine at send time and shared by a
	// request and its matching response.
	Sequence uint64

	Timestamp time.Time
}

// RejectedService returns the service id a negative response was
// reporting against, valid only when Negative is true.
func (m DiagnosticMessage) RejectedService() byte {
	if len(m.Payload) == 0 {
		return 0
	}
	return m.Payload[0]
}

// decodeResponse builds the Inbound DiagnosticMessage for a raw response
// stamped with the given sequence number. A
// service_id of 0x7F marks a negative response: Payload[0] is the
// rejected service, Payload[1] is the NRC.
func decodeResponse(raw []byte, seq uint64) (DiagnosticMessage, error) {
	if len(raw) == 0 {
		return DiagnosticMessage{}, errEmptyResponse
	}
	msg := DiagnosticMessage{
		Direction: Inbound,
		ServiceID: raw[0],
		Payload:   raw[1:],
		Sequence:  seq,
		Timestamp: time.Now(),
	}
	if raw[0] == 0x7F {
		if len(raw) < 3 {
			return DiagnosticMessage{}, errMalformedNegativeResponse
		}
		msg.Negative = true
		msg.Payload = []byte{raw[1], raw[2]}
		msg.NRC = raw[2]
	}
	return msg, nil
}
