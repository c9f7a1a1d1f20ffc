// Package isotp implements ISO 15765-2 segmentation and reassembly: the
// four PCI frame kinds, an encoder that splits an outgoing payload into a
// CAN frame train, and a per-address-pair assembler state machine that
// reconstructs a message from the incoming frame stream.
package isotp

import "fmt"

// FrameKind is the PCI (protocol control information) nibble identifying
// one of the four ISO-TP frame types.
type FrameKind byte

const (
	KindSingle      FrameKind = 0x0
	KindFirst       FrameKind = 0x1
	KindConsecutive FrameKind = 0x2
	KindFlowControl FrameKind = 0x3
)

// FlowStatus is the low nibble of a Flow Control frame's first byte.
type FlowStatus byte

const (
	FlowContinue FlowStatus = 0x0
	FlowWait     FlowStatus = 0x1
	FlowOverflow FlowStatus = 0x2
)

// MaxReassembledLength is the largest message ISO-TP's 12-bit length
// field can describe.
const MaxReassembledLength = 4095

// Frame is a decoded ISO-TP PCI frame. Only the fields relevant to Kind
// are meaningful; callers switch on Kind first.
type Frame struct {
	Kind FrameKind

	// Single
	SingleLength int
	Payload      []byte

	// First
	TotalLength int
	FirstBytes  []byte

	// Consecutive
	SequenceNumber byte
	CFPayload      []byte

	// FlowControl
	Status       FlowStatus
	BlockSize    byte
	SeparationTime byte
}

// Decode parses the PCI nibble out of a raw 8-byte (or shorter, for a
// short Single Frame) CAN payload.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("isotp: empty frame")
	}
	pci := data[0]
	kind := FrameKind(pci >> 4)

	switch kind {
	case KindSingle:
		length := int(pci & 0x0F)
		if length == 0 || length > len(data)-1 {
			return Frame{}, fmt.Errorf("isotp: single frame declares length %d, have %d bytes", length, len(data)-1)
		}
		return Frame{Kind: KindSingle, SingleLength: length, Payload: append([]byte{}, data[1:1+length]...)}, nil

	case KindFirst:
		if len(data) < 2 {
			return Frame{}, fmt.Errorf("isotp: truncated first frame")
		}
		total := (int(pci&0x0F) << 8) | int(data[1])
		if total < 8 || total > MaxReassembledLength {
			return Frame{}, fmt.Errorf("isotp: first frame declares invalid total length %d", total)
		}
		return Frame{Kind: KindFirst, TotalLength: total, FirstBytes: append([]byte{}, data[2:]...)}, nil

	case KindConsecutive:
		sn := pci & 0x0F
		return Frame{Kind: KindConsecutive, SequenceNumber: sn, CFPayload: append([]byte{}, data[1:]...)}, nil

	case KindFlowControl:
		if len(data) < 3 {
			return Frame{}, fmt.Errorf("isotp: truncated flow control frame")
		}
		return Frame{
			Kind: KindFlowControl, Status: FlowStatus(pci & 0x0F),
			BlockSize: data[1], SeparationTime: data[2],
		}, nil
	}

	return Frame{}, fmt.Errorf("isotp: unknown PCI nibble %#x", pci)
}

// EncodeSingle builds an unpadded Single Frame (1+len(payload) bytes,
// caller pads) for a payload of 1-7 bytes.
func EncodeSingle(payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > 7 {
		return nil, fmt.Errorf("isotp: single frame payload must be 1-7 bytes, got %d", len(payload))
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(KindSingle)<<4|byte(len(payload)))
	out = append(out, payload...)
	return out, nil
}

// EncodeFirst builds a First Frame declaring totalLength, carrying the
// first 6 bytes of payload.
func EncodeFirst(totalLength int, first6 []byte) ([]byte, error) {
	if totalLength < 8 || totalLength > MaxReassembledLength {
		return nil, fmt.Errorf("isotp: first frame total length %d out of range", totalLength)
	}
	if len(first6) != 6 {
		return nil, fmt.Errorf("isotp: first frame needs exactly 6 payload bytes, got %d", len(first6))
	}
	out := make([]byte, 0, 8)
	out = append(out, byte(KindFirst)<<4|byte(totalLength>>8), byte(totalLength&0xFF))
	out = append(out, first6...)
	return out, nil
}

// EncodeConsecutive builds a Consecutive Frame with sequence number sn
// (mod 16) carrying up to 7 payload bytes.
func EncodeConsecutive(sn byte, payload []byte) ([]byte, error) {
	if len(payload) == 0 || len(payload) > 7 {
		return nil, fmt.Errorf("isotp: consecutive frame payload must be 1-7 bytes, got %d", len(payload))
	}
	out := make([]byte, 0, 1+len(payload))
	out = append(out, byte(KindConsecutive)<<4|(sn&0x0F))
	out = append(out, payload...)
	return out, nil
}

// EncodeFlowControl builds a Flow Control frame.
func EncodeFlowControl(status FlowStatus, blockSize, separationTime byte) []byte {
	return []byte{byte(KindFlowControl)<<4 | byte(status), blockSize, separationTime}
}

// DecodeSeparationTime converts a wire STmin byte to a duration:
// 0x00-0x7F is milliseconds, 0xF1-0xF9 is 100-900 microseconds.
func DecodeSeparationTime(b byte) (value int, isMicros bool, err error) {
	switch {
	case b <= 0x7F:
		return int(b), false, nil
	case b >= 0xF1 && b <= 0xF9:
		return int(b-0xF0) * 100, true, nil
	default:
		return 0, false, fmt.Errorf("isotp: reserved STmin byte %#x", b)
	}
}

// EncodeSeparationTimeMillis encodes a millisecond STmin value (0-127) as
// a wire byte. Sub-millisecond values should use
// EncodeSeparationTimeMicros instead.
func EncodeSeparationTimeMillis(ms int) (byte, error) {
	if ms < 0 || ms > 0x7F {
		return 0, fmt.Errorf("isotp: STmin millisecond value %d out of range", ms)
	}
	return byte(ms), nil
}

// EncodeSeparationTimeMicros encodes a 100-900us STmin value as a wire byte.
func EncodeSeparationTimeMicros(us int) (byte, error) {
	if us < 100 || us > 900 || us%100 != 0 {
		return 0, fmt.Errorf("isotp: STmin microsecond value %d must be a multiple of 100 in [100,900]", us)
	}
	return 0xF0 + byte(us/100), nil
}
