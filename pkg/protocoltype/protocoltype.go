// Package protocoltype is the closed enumeration of vehicle bus variants
// this core can speak, plus the per-variant behavior table (probe bytes,
// response validator, AT-command configuration profile, padding and
// checksum policy). New protocols are added as table rows here, never as
// a new type implementing some behavior interface — this mirrors the
// teacher's table-driven object dictionary entries more than it does a
// class hierarchy.
package protocoltype

import (
	"fmt"

	"obdcore.dev/internal/chk"
)

// Category groups protocols that share a physical/link layer.
type Category int

const (
	CategoryCAN Category = iota
	CategoryKWP
	CategoryISO9141
	CategoryJ1850
	CategoryJ1939
)

func (c Category) String() string {
	switch c {
	case CategoryCAN:
		return "CAN"
	case CategoryKWP:
		return "KWP"
	case CategoryISO9141:
		return "ISO9141"
	case CategoryJ1850:
		return "J1850"
	case CategoryJ1939:
		return "J1939"
	default:
		return "UNKNOWN"
	}
}

// Type is the closed enumeration of bus variants.
type Type int

const (
	SAEJ1850PWM Type = iota
	SAEJ1850VPW
	ISO91412
	ISO142304KWPFast
	ISO142304KWP5Baud
	ISO157654CAN11Bit500K
	ISO157654CAN29Bit500K
	ISO157654CAN11Bit250K
	ISO157654CAN29Bit250K
	UDSOnCAN11Bit500K
	UDSOnCAN29Bit500K
	J1939
)

// ValidateFunc decides whether a raw adapter response is a valid positive
// probe response for a protocol.
type ValidateFunc func(resp []byte) bool

// Row is one behavior-table entry: everything specific to a single
// protocol variant, grouped so adding a protocol means adding one Row
// instead of touching control flow anywhere else.
type Row struct {
	Type Type

	Category     Category
	BitWidth     int // 11 or 29; 0 for non-CAN
	BaudRate     int
	RequestAddr  uint32
	ResponseAddr uint32
	Requires5Baud bool

	// DisplayName is a short human label, e.g. "ISO 15765-4 CAN (11/500)".
	DisplayName string

	// ATProfile is the ordered AT-command sequence the adapter driver
	// issues during configure(). "ATSPn" selects the ELM327 protocol
	// number.
	ATProfile []string

	// ProbeRequest is the canonical probe payload for this protocol
	// (OBD-II mode 01 PID 00, or the J1939 PGN 0xF004 request).
	ProbeRequest []byte

	// Validate classifies a raw probe response as valid/invalid.
	Validate ValidateFunc

	DefaultPadding     bool
	DefaultPaddingByte byte

	// MaxSingleFrame is the largest payload deliverable without
	// segmentation on this protocol.
	MaxSingleFrame int
	// MaxReassembled is the largest payload this protocol's segmentation
	// scheme can reassemble.
	MaxReassembled int

	// ChecksumPolicy selects the application-layer checksum this
	// protocol's responses carry, if any. CAN protocols leave this at
	// chk.PolicyNone since the CAN controller's own CRC already protects
	// the frame.
	ChecksumPolicy chk.Policy
}

func hasByte(resp []byte, b byte) bool {
	for _, v := range resp {
		if v == b {
			return true
		}
	}
	return false
}

func validateMode01(resp []byte) bool { return hasByte(resp, 0x41) }
func validateKWPOrISO9141(resp []byte) bool {
	return hasByte(resp, 0x41) || hasByte(resp, 0xC1)
}
func validateJ1939(resp []byte) bool { return len(resp) >= 8 }

var obdProbe = []byte{0x01, 0x00}
var j1939Probe = []byte{0x00, 0xF0, 0x04} // PGN 0xF004 request, priority/src elided here

// table is keyed by Type and initialised as a package-level literal;
// Lookup and All are its only accessors and return Row copies.
var table = map[Type]Row{
	SAEJ1850PWM: {
		Type: SAEJ1850PWM, Category: CategoryJ1850, BitWidth: 0, BaudRate: 41600,
		DisplayName:  "SAE J1850 PWM",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP1"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: false, MaxSingleFrame: 7, MaxReassembled: 7,
		ChecksumPolicy: chk.PolicySumMod256,
	},
	SAEJ1850VPW: {
		Type: SAEJ1850VPW, Category: CategoryJ1850, BitWidth: 0, BaudRate: 10400,
		DisplayName:  "SAE J1850 VPW",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP2"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: false, MaxSingleFrame: 7, MaxReassembled: 7,
		ChecksumPolicy: chk.PolicySumMod256,
	},
	ISO91412: {
		Type: ISO91412, Category: CategoryISO9141, BitWidth: 0, BaudRate: 10400,
		RequestAddr: 0x68, ResponseAddr: 0x6B, Requires5Baud: true,
		DisplayName:  "ISO 9141-2",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP3"},
		ProbeRequest: obdProbe, Validate: validateKWPOrISO9141,
		DefaultPadding: false, MaxSingleFrame: 7, MaxReassembled: 255,
		ChecksumPolicy: chk.PolicySumMod256,
	},
	ISO142304KWPFast: {
		Type: ISO142304KWPFast, Category: CategoryKWP, BitWidth: 0, BaudRate: 10400,
		RequestAddr: 0x33, ResponseAddr: 0xF1,
		DisplayName:  "ISO 14230-4 KWP (fast init)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP4"},
		ProbeRequest: obdProbe, Validate: validateKWPOrISO9141,
		DefaultPadding: false, MaxSingleFrame: 7, MaxReassembled: 255,
		ChecksumPolicy: chk.PolicySumMod256KWP,
	},
	ISO142304KWP5Baud: {
		Type: ISO142304KWP5Baud, Category: CategoryKWP, BitWidth: 0, BaudRate: 10400,
		RequestAddr: 0x33, ResponseAddr: 0xF1, Requires5Baud: true,
		DisplayName:  "ISO 14230-4 KWP (5-baud init)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP5"},
		ProbeRequest: obdProbe, Validate: validateKWPOrISO9141,
		DefaultPadding: false, MaxSingleFrame: 7, MaxReassembled: 255,
		ChecksumPolicy: chk.PolicySumMod256KWP,
	},
	ISO157654CAN11Bit500K: {
		Type: ISO157654CAN11Bit500K, Category: CategoryCAN, BitWidth: 11, BaudRate: 500000,
		RequestAddr: 0x7DF, ResponseAddr: 0x7E8,
		DisplayName:  "ISO 15765-4 CAN (11bit/500k)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP6"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: true, DefaultPaddingByte: 0x00, MaxSingleFrame: 7, MaxReassembled: 4095,
	},
	ISO157654CAN29Bit500K: {
		Type: ISO157654CAN29Bit500K, Category: CategoryCAN, BitWidth: 29, BaudRate: 500000,
		RequestAddr: 0x18DB33F1, ResponseAddr: 0x18DAF110,
		DisplayName:  "ISO 15765-4 CAN (29bit/500k)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP7"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: true, DefaultPaddingByte: 0x00, MaxSingleFrame: 7, MaxReassembled: 4095,
	},
	ISO157654CAN11Bit250K: {
		Type: ISO157654CAN11Bit250K, Category: CategoryCAN, BitWidth: 11, BaudRate: 250000,
		RequestAddr: 0x7DF, ResponseAddr: 0x7E8,
		DisplayName:  "ISO 15765-4 CAN (11bit/250k)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP8"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: true, DefaultPaddingByte: 0x00, MaxSingleFrame: 7, MaxReassembled: 4095,
	},
	ISO157654CAN29Bit250K: {
		Type: ISO157654CAN29Bit250K, Category: CategoryCAN, BitWidth: 29, BaudRate: 250000,
		RequestAddr: 0x18DB33F1, ResponseAddr: 0x18DAF110,
		DisplayName:  "ISO 15765-4 CAN (29bit/250k)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP9"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: true, DefaultPaddingByte: 0x00, MaxSingleFrame: 7, MaxReassembled: 4095,
	},
	UDSOnCAN11Bit500K: {
		Type: UDSOnCAN11Bit500K, Category: CategoryCAN, BitWidth: 11, BaudRate: 500000,
		RequestAddr: 0x7E0, ResponseAddr: 0x7E8,
		DisplayName:  "UDS on CAN (11bit/500k)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP6"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: true, DefaultPaddingByte: 0x00, MaxSingleFrame: 7, MaxReassembled: 4095,
	},
	UDSOnCAN29Bit500K: {
		Type: UDSOnCAN29Bit500K, Category: CategoryCAN, BitWidth: 29, BaudRate: 500000,
		RequestAddr: 0x18DA10F1, ResponseAddr: 0x18DAF110,
		DisplayName:  "UDS on CAN (29bit/500k)",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH0", "ATSP7"},
		ProbeRequest: obdProbe, Validate: validateMode01,
		DefaultPadding: true, DefaultPaddingByte: 0x00, MaxSingleFrame: 7, MaxReassembled: 4095,
	},
	J1939: {
		Type: J1939, Category: CategoryJ1939, BitWidth: 29, BaudRate: 250000,
		DisplayName:  "SAE J1939",
		ATProfile:    []string{"ATE0", "ATL0", "ATS0", "ATH1", "ATSPA"},
		ProbeRequest: j1939Probe, Validate: validateJ1939,
		DefaultPadding: true, DefaultPaddingByte: 0xFF, MaxSingleFrame: 8, MaxReassembled: 1785,
	},
}

// Lookup returns the behavior row for t.
func Lookup(t Type) (Row, error) {
	row, ok := table[t]
	if !ok {
		return Row{}, fmt.Errorf("protocoltype: unknown protocol type %d", t)
	}
	return row, nil
}

// All returns the eight rows of the detector's default candidate order, in
// that order. The KWP 5-baud, UDS-on-CAN and J1939 rows are not included.
func All() []Row {
	order := []Type{
		ISO157654CAN11Bit500K, ISO157654CAN29Bit500K,
		ISO157654CAN11Bit250K, ISO157654CAN29Bit250K,
		ISO142304KWPFast, ISO91412, SAEJ1850VPW, SAEJ1850PWM,
	}
	rows := make([]Row, 0, len(order))
	for _, t := range order {
		rows = append(rows, table[t])
	}
	return rows
}

func (t Type) String() string {
	row, err := Lookup(t)
	if err != nil {
		return "UNKNOWN"
	}
	return row.DisplayName
}
