// Package dtc implements the diagnostic trouble code codec: binary to
// canonical five-character code, status byte bitfield decoding,
// freeze-frame PID decoding per SAE J1979, and a severity heuristic.
package dtc

import (
	"fmt"
	"regexp"
)

// CodeRegex is the canonical DTC code shape: one system letter, a digit
// 0-3, and three more hex digits.
var CodeRegex = regexp.MustCompile(`^[PCBU][0-3][0-9A-F]{3}$`)

var systemLetters = [4]byte{'P', 'C', 'B', 'U'}

// Decode converts two raw DTC bytes into a canonical five-character code.
// The padding sentinel (0x00, 0x00) has no valid code and is reported via
// ok=false rather than an error, since callers are expected to skip it
// silently while walking a DTC list.
func Decode(b1, b2 byte) (code string, ok bool) {
	if b1 == 0 && b2 == 0 {
		return "", false
	}
	letter := systemLetters[b1>>6]
	second := (b1 >> 4) & 0x03
	third := b1 & 0x0F
	fourth := (b2 >> 4) & 0x0F
	fifth := b2 & 0x0F

	return fmt.Sprintf("%c%d%X%X%X", letter, second, third, fourth, fifth), true
}

// Encode converts a canonical code back to its two raw bytes. Rejects any
// input not matching CodeRegex.
func Encode(code string) (b1, b2 byte, err error) {
	if !CodeRegex.MatchString(code) {
		return 0, 0, fmt.Errorf("dtc: %q is not a valid canonical code", code)
	}

	var letterBits byte
	switch code[0] {
	case 'P':
		letterBits = 0b00
	case 'C':
		letterBits = 0b01
	case 'B':
		letterBits = 0b10
	case 'U':
		letterBits = 0b11
	}

	second := code[1] - '0'
	third := hexDigit(code[2])
	fourth := hexDigit(code[3])
	fifth := hexDigit(code[4])

	b1 = letterBits<<6 | second<<4 | third
	b2 = fourth<<4 | fifth
	return b1, b2, nil
}

func hexDigit(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	default:
		return c - 'A' + 10
	}
}

// DecodeAll decodes a byte slice of (b1, b2) pairs into codes, skipping
// padding sentinels. An odd trailing byte is ignored.
func DecodeAll(raw []byte) []string {
	codes := make([]string, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		if code, ok := Decode(raw[i], raw[i+1]); ok {
			codes = append(codes, code)
		}
	}
	return codes
}
