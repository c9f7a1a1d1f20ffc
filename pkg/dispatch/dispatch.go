// Package dispatch is the typed service layer over the session engine:
// each exported function is a pure function of (engine, parameters) that
// builds the request bytes, calls engine.Exchange, and parses the
// response into a typed result. None of it holds state of its own —
// errors from the engine (NRC, protocol violation, state) bubble up
// unwrapped or lightly wrapped with the operation's name.
package dispatch

import (
	"fmt"

	"obdcore.dev/pkg/config"
	"obdcore.dev/pkg/dtc"
	"obdcore.dev/pkg/session"
)

// PIDReading is the result of a live or freeze-frame PID read: the raw
// bytes plus, for PIDs this core knows the J1979 formula for, the
// decoded physical value.
type PIDReading struct {
	PID     byte
	Raw     []byte
	Value   float64
	Decoded bool
}

// ReadPID issues Mode 01 (show current data) for pid and parses the
// result per the SAE J1979 scale/offset table.
func ReadPID(e *session.Engine, pid byte) (PIDReading, error) {
	msg, err := e.Exchange(0x01, []byte{pid})
	if err != nil {
		return PIDReading{}, fmt.Errorf("dispatch: read pid 0x%02X: %w", pid, err)
	}
	if len(msg.Payload) < 1 || msg.Payload[0] != pid {
		return PIDReading{}, fmt.Errorf("dispatch: read pid 0x%02X: response echoes wrong pid", pid)
	}
	raw := msg.Payload[1:]
	value, decoded, err := dtc.DecodePID(pid, raw)
	if err != nil {
		return PIDReading{}, fmt.Errorf("dispatch: read pid 0x%02X: %w", pid, err)
	}
	return PIDReading{PID: pid, Raw: raw, Value: value, Decoded: decoded}, nil
}

// ReadFreezeFramePID issues Mode 02 (freeze frame data) for pid within
// frameNumber.
func ReadFreezeFramePID(e *session.Engine, pid, frameNumber byte) (PIDReading, error) {
	msg, err := e.Exchange(0x02, []byte{pid, frameNumber})
	if err != nil {
		return PIDReading{}, fmt.Errorf("dispatch: read freeze frame pid 0x%02X: %w", pid, err)
	}
	if len(msg.Payload) < 2 || msg.Payload[0] != pid || msg.Payload[1] != frameNumber {
		return PIDReading{}, fmt.Errorf("dispatch: read freeze frame pid 0x%02X: malformed response", pid)
	}
	raw := msg.Payload[2:]
	value, decoded, err := dtc.DecodePID(pid, raw)
	if err != nil {
		return PIDReading{}, fmt.Errorf("dispatch: read freeze frame pid 0x%02X: %w", pid, err)
	}
	return PIDReading{PID: pid, Raw: raw, Value: value, Decoded: decoded}, nil
}

// ReadFreezeFrame reads every pid in pids within frameNumber and
// assembles them into one dtc.FreezeFrame tagged with code (the DTC that
// triggered the capture, typically obtained by reading PID 0x02 first).
func ReadFreezeFrame(e *session.Engine, code string, frameNumber byte, pids []byte) (*dtc.FreezeFrame, error) {
	raw := make(map[byte][]byte, len(pids))
	for _, pid := range pids {
		reading, err := ReadFreezeFramePID(e, pid, frameNumber)
		if err != nil {
			return nil, err
		}
		raw[pid] = reading.Raw
	}
	return dtc.NewFreezeFrame(code, frameNumber, raw), nil
}

// ReadStoredDTCs issues Mode 03.
func ReadStoredDTCs(e *session.Engine) ([]dtc.DTC, error) {
	return readDTCs(e, 0x03, dtc.KindStored)
}

// ReadPendingDTCs issues Mode 07.
func ReadPendingDTCs(e *session.Engine) ([]dtc.DTC, error) {
	return readDTCs(e, 0x07, dtc.KindPending)
}

// ReadPermanentDTCs issues Mode 0A.
func ReadPermanentDTCs(e *session.Engine) ([]dtc.DTC, error) {
	return readDTCs(e, 0x0A, dtc.KindPermanent)
}

// readDTCs issues serviceID (03/07/0A) and decodes the resulting DTC
// list. The first payload byte after the service id is the DTC count,
// not part of a code pair, so the (b1, b2) walk starts one byte in.
func readDTCs(e *session.Engine, serviceID byte, kind dtc.Kind) ([]dtc.DTC, error) {
	msg, err := e.Exchange(serviceID, nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: read dtcs (service 0x%02X): %w", serviceID, err)
	}
	if len(msg.Payload) < 1 {
		return nil, fmt.Errorf("dispatch: read dtcs (service 0x%02X): malformed response", serviceID)
	}
	codes := dtc.DecodeAll(msg.Payload[1:])
	out := make([]dtc.DTC, 0, len(codes))
	for _, code := range codes {
		out = append(out, dtc.DTC{Code: code, Kind: kind})
	}
	return out, nil
}

// ClearDTCs issues Mode 04. A positive response carries no payload; only
// the error (if any) is meaningful.
func ClearDTCs(e *session.Engine) error {
	if _, err := e.Exchange(0x04, nil); err != nil {
		return fmt.Errorf("dispatch: clear dtcs: %w", err)
	}
	return nil
}

// ReadVIN issues Mode 09 PID 02 and assembles the multi-line ASCII VIN.
// The payload shape is PID(0x02), item-count byte, then the VIN
// characters; the frame/transport layer below this is responsible for
// any multi-frame reassembly (ISO-TP or the adapter's own line
// consolidation), so by the time Exchange returns, payload is already
// one contiguous byte run.
func ReadVIN(e *session.Engine) (string, error) {
	msg, err := e.Exchange(0x09, []byte{0x02})
	if err != nil {
		return "", fmt.Errorf("dispatch: read vin: %w", err)
	}
	if len(msg.Payload) < 2 || msg.Payload[0] != 0x02 {
		return "", fmt.Errorf("dispatch: read vin: malformed response")
	}
	return string(msg.Payload[2:]), nil
}

// ReadDID issues a UDS ReadDataByIdentifier (0x22) request for did.
func ReadDID(e *session.Engine, did uint16) ([]byte, error) {
	msg, err := e.Exchange(0x22, []byte{byte(did >> 8), byte(did)})
	if err != nil {
		return nil, fmt.Errorf("dispatch: read did 0x%04X: %w", did, err)
	}
	if len(msg.Payload) < 2 {
		return nil, fmt.Errorf("dispatch: read did 0x%04X: malformed response", did)
	}
	return msg.Payload[2:], nil
}

// StartSession delegates to the session engine's state transition; it is
// exposed here too so every table-listed operation has a dispatch-layer
// entry point.
func StartSession(e *session.Engine, sessionType config.SessionType) error {
	return e.StartSession(sessionType)
}

// RequestSecuritySeed issues the seed half of the Security Access (0x27)
// seed/key dialog for the given access level.
func RequestSecuritySeed(e *session.Engine, level byte) ([]byte, error) {
	msg, err := e.Exchange(0x27, []byte{level})
	if err != nil {
		return nil, fmt.Errorf("dispatch: security access seed (level 0x%02X): %w", level, err)
	}
	if len(msg.Payload) < 1 || msg.Payload[0] != level {
		return nil, fmt.Errorf("dispatch: security access seed (level 0x%02X): malformed response", level)
	}
	return msg.Payload[1:], nil
}

// SendSecurityKey issues the key half of the seed/key dialog. level must
// be the seed level plus one, per ISO 14229-1.
func SendSecurityKey(e *session.Engine, level byte, key []byte) error {
	req := append([]byte{level}, key...)
	if _, err := e.Exchange(0x27, req); err != nil {
		return fmt.Errorf("dispatch: security access key (level 0x%02X): %w", level, err)
	}
	return nil
}

// RoutineControl issues a RoutineControl (0x31) request: subFunction
// selects start/stop/requestResults, routineID identifies the routine,
// and options carries any routine-specific input parameters.
func RoutineControl(e *session.Engine, subFunction byte, routineID uint16, options []byte) ([]byte, error) {
	req := append([]byte{subFunction, byte(routineID >> 8), byte(routineID)}, options...)
	msg, err := e.Exchange(0x31, req)
	if err != nil {
		return nil, fmt.Errorf("dispatch: routine control 0x%04X: %w", routineID, err)
	}
	if len(msg.Payload) < 3 {
		return nil, fmt.Errorf("dispatch: routine control 0x%04X: malformed response", routineID)
	}
	return msg.Payload[3:], nil
}

// ECUReset issues ECUReset (0x11). A hard reset type (1: hardReset, 2:
// keyOffOnReset) may drop the ECU off the bus for several seconds; the
// caller is responsible for the reconnect policy — this function only
// performs the request and reports whether the ECU accepted it.
func ECUReset(e *session.Engine, resetType byte) error {
	if _, err := e.Exchange(0x11, []byte{resetType}); err != nil {
		return fmt.Errorf("dispatch: ecu reset 0x%02X: %w", resetType, err)
	}
	return nil
}
