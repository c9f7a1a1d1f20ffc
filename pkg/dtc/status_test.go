package dtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeStatusAllBits(t *testing.T) {
	s := DecodeStatus(0xFF)
	assert.True(t, s.TestFailed)
	assert.True(t, s.TestFailedThisCycle)
	assert.True(t, s.PendingDTC)
	assert.True(t, s.ConfirmedDTC)
	assert.True(t, s.TestNotCompletedSinceClear)
	assert.True(t, s.TestFailedSinceClear)
	assert.True(t, s.TestNotCompletedThisCycle)
	assert.True(t, s.WarningIndicatorRequested)
	assert.True(t, s.MIL())
}

func TestStatusRoundTrip(t *testing.T) {
	for b := 0; b < 256; b++ {
		s := DecodeStatus(byte(b))
		assert.Equal(t, byte(b), s.Encode())
	}
}

func TestMILReflectsOnlyBit7(t *testing.T) {
	s := DecodeStatus(0x7F)
	assert.False(t, s.MIL())
	s = DecodeStatus(0x80)
	assert.True(t, s.MIL())
}
