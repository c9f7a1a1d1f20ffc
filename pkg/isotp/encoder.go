package isotp

import "fmt"

// Encode splits payload into the raw (unpadded) ISO-TP frame bytes needed
// to transmit it: a single Single Frame when it fits in 7 bytes, or a
// First Frame followed by a train of Consecutive Frames otherwise.
func Encode(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("isotp: cannot encode empty payload")
	}
	if len(payload) > MaxReassembledLength {
		return nil, fmt.Errorf("isotp: payload length %d exceeds max %d", len(payload), MaxReassembledLength)
	}

	if len(payload) <= 7 {
		sf, err := EncodeSingle(payload)
		if err != nil {
			return nil, err
		}
		return [][]byte{sf}, nil
	}

	ff, err := EncodeFirst(len(payload), payload[:6])
	if err != nil {
		return nil, err
	}
	frames := [][]byte{ff}

	remaining := payload[6:]
	sn := byte(1)
	for len(remaining) > 0 {
		chunkLen := 7
		if len(remaining) < chunkLen {
			chunkLen = len(remaining)
		}
		cf, err := EncodeConsecutive(sn, remaining[:chunkLen])
		if err != nil {
			return nil, err
		}
		frames = append(frames, cf)
		remaining = remaining[chunkLen:]
		sn = (sn + 1) % 16
	}

	return frames, nil
}

// Pad right-pads frame to exactly 8 bytes with padByte, as CAN's fixed
// frame length requires when config.enable_padding is set. Frames already
// at or over 8 bytes are returned unchanged (over-length is a caller bug,
// not something to silently truncate).
func Pad(frame []byte, padByte byte) []byte {
	if len(frame) >= 8 {
		return frame
	}
	out := make([]byte, 8)
	copy(out, frame)
	for i := len(frame); i < 8; i++ {
		out[i] = padByte
	}
	return out
}
