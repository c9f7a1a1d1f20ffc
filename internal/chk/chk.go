// Package chk implements the application-layer checksum variants the
// non-CAN bus protocols carry on the wire, the same small self-contained
// checksum helper role the teacher's internal/crc package fills for its
// segmented SDO transfer.
package chk

import "fmt"

// Policy selects how a protocol's trailing checksum byte is computed and
// verified. CAN protocols carry no application-layer checksum of their
// own — the CAN controller's hardware CRC already protects the frame —
// so they use PolicyNone.
type Policy int

const (
	// PolicyNone means there is no application-level checksum to check;
	// Verify always succeeds and Compute always errors.
	PolicyNone Policy = iota

	// PolicySumMod256 is sum-modulo-256 over every byte of the message
	// except the last, which carries the checksum. SAE J1850 and
	// ISO 9141-2 both use this.
	PolicySumMod256

	// PolicySumMod256KWP is the ISO 14230-4 (KWP2000) variant: the
	// checksum still trails the message, but the leading format byte is
	// excluded from the sum — KWP defines the checksum over the
	// target/source/length header fields and the data, never the
	// format byte itself.
	PolicySumMod256KWP
)

func (p Policy) String() string {
	switch p {
	case PolicyNone:
		return "None"
	case PolicySumMod256:
		return "SumMod256"
	case PolicySumMod256KWP:
		return "SumMod256KWP"
	default:
		return "Unknown"
	}
}

// Compute returns the expected checksum byte for body under policy. body
// is every byte the checksum covers, i.e. the full message with the
// trailing checksum byte itself already removed.
func Compute(policy Policy, body []byte) (byte, error) {
	switch policy {
	case PolicySumMod256:
		return sumMod256(body), nil
	case PolicySumMod256KWP:
		if len(body) == 0 {
			return sumMod256(body), nil
		}
		return sumMod256(body[1:]), nil
	default:
		return 0, fmt.Errorf("chk: policy %s has no checksum to compute", policy)
	}
}

func sumMod256(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// Verify reports whether raw's final byte is a valid checksum over the
// bytes preceding it, per policy. PolicyNone always reports true. A
// message shorter than two bytes can never carry a valid checksum under
// a checked policy.
func Verify(policy Policy, raw []byte) bool {
	if policy == PolicyNone {
		return true
	}
	if len(raw) < 2 {
		return false
	}
	body, want := raw[:len(raw)-1], raw[len(raw)-1]
	got, err := Compute(policy, body)
	if err != nil {
		return false
	}
	return got == want
}

// Strip removes the trailing checksum byte, returning the body. Callers
// must call Verify first; Strip does not itself validate.
func Strip(policy Policy, raw []byte) []byte {
	if policy == PolicyNone || len(raw) == 0 {
		return raw
	}
	return raw[:len(raw)-1]
}
