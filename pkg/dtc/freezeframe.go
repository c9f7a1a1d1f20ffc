package dtc

import "fmt"

// FreezeFrame captures the live-data snapshot taken when a DTC set. It's
// keyed by DTC code and frame number, carrying both the raw bytes per PID
// (for PIDs this core doesn't know how to decode) and the named decoded
// values for the standard set.
type FreezeFrame struct {
	Code        string
	FrameNumber byte

	RawByPID map[byte][]byte
	Decoded  map[byte]float64 // only present for PIDs this core decodes
}

// DecodePID applies the SAE J1979 scale/offset formula for one of the
// standard freeze-frame PIDs. ok is false for PIDs outside that set —
// callers keep the raw bytes for those instead.
func DecodePID(pid byte, raw []byte) (value float64, ok bool, err error) {
	need := func(n int) error {
		if len(raw) < n {
			return fmt.Errorf("dtc: PID %#x needs %d bytes, got %d", pid, n, len(raw))
		}
		return nil
	}

	switch pid {
	case 0x04: // calculated engine load, %
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0]) * 100 / 255, true, nil
	case 0x05: // coolant temperature, degC
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0]) - 40, true, nil
	case 0x06, 0x07: // short/long term fuel trim, %
		if err := need(1); err != nil {
			return 0, false, err
		}
		return (float64(raw[0])-128)*100/128, true, nil
	case 0x0B: // intake manifold absolute pressure, kPa
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0]), true, nil
	case 0x0C: // engine RPM
		if err := need(2); err != nil {
			return 0, false, err
		}
		return (float64(raw[0])*256 + float64(raw[1])) / 4, true, nil
	case 0x0D: // vehicle speed, km/h
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0]), true, nil
	case 0x0E: // timing advance, degrees before TDC
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0])/2 - 64, true, nil
	case 0x0F: // intake air temperature, degC
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0]) - 40, true, nil
	case 0x10: // MAF air flow rate, g/s
		if err := need(2); err != nil {
			return 0, false, err
		}
		return (float64(raw[0])*256 + float64(raw[1])) / 100, true, nil
	case 0x11: // throttle position, %
		if err := need(1); err != nil {
			return 0, false, err
		}
		return float64(raw[0]) * 100 / 255, true, nil
	case 0x1F: // run time since engine start, s
		if err := need(2); err != nil {
			return 0, false, err
		}
		return float64(raw[0])*256 + float64(raw[1]), true, nil
	case 0x21: // distance traveled with MIL on, km
		if err := need(2); err != nil {
			return 0, false, err
		}
		return float64(raw[0])*256 + float64(raw[1]), true, nil
	default:
		return 0, false, nil
	}
}

// NewFreezeFrame builds a FreezeFrame from a map of raw PID bytes,
// decoding every standard PID it recognizes and leaving the rest as raw
// bytes only.
func NewFreezeFrame(code string, frameNumber byte, rawByPID map[byte][]byte) *FreezeFrame {
	ff := &FreezeFrame{
		Code: code, FrameNumber: frameNumber,
		RawByPID: rawByPID, Decoded: make(map[byte]float64),
	}
	for pid, raw := range rawByPID {
		if value, ok, err := DecodePID(pid, raw); err == nil && ok {
			ff.Decoded[pid] = value
		}
	}
	return ff
}
