package dtc

// Status decodes the eight named bits of a DTC status byte per
// ISO 14229-1 / SAE J1979.
type Status struct {
	TestFailed                  bool
	TestFailedThisCycle         bool
	PendingDTC                  bool
	ConfirmedDTC                bool
	TestNotCompletedSinceClear  bool
	TestFailedSinceClear        bool
	TestNotCompletedThisCycle   bool
	WarningIndicatorRequested   bool // authoritative MIL flag for this ECU+DTC
}

// DecodeStatus unpacks a raw status byte.
func DecodeStatus(b byte) Status {
	return Status{
		TestFailed:                 b&0x01 != 0,
		TestFailedThisCycle:        b&0x02 != 0,
		PendingDTC:                 b&0x04 != 0,
		ConfirmedDTC:               b&0x08 != 0,
		TestNotCompletedSinceClear: b&0x10 != 0,
		TestFailedSinceClear:       b&0x20 != 0,
		TestNotCompletedThisCycle:  b&0x40 != 0,
		WarningIndicatorRequested:  b&0x80 != 0,
	}
}

// Encode packs Status back into a raw byte.
func (s Status) Encode() byte {
	var b byte
	if s.TestFailed {
		b |= 0x01
	}
	if s.TestFailedThisCycle {
		b |= 0x02
	}
	if s.PendingDTC {
		b |= 0x04
	}
	if s.ConfirmedDTC {
		b |= 0x08
	}
	if s.TestNotCompletedSinceClear {
		b |= 0x10
	}
	if s.TestFailedSinceClear {
		b |= 0x20
	}
	if s.TestNotCompletedThisCycle {
		b |= 0x40
	}
	if s.WarningIndicatorRequested {
		b |= 0x80
	}
	return b
}

// MIL reports whether the malfunction indicator lamp should be lit for
// this ECU+DTC, per the authoritative bit 7.
func (s Status) MIL() bool { return s.WarningIndicatorRequested }
