package dtc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePIDFormulas(t *testing.T) {
	v, ok, err := DecodePID(0x05, []byte{0x7B})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, float64(83), v) // 0x7B=123, 123-40=83

	v, ok, err = DecodePID(0x0C, []byte{0x1A, 0xF8})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1726.0, v)

	v, ok, err = DecodePID(0x0D, []byte{0x32})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 50.0, v)

	v, ok, err = DecodePID(0x11, []byte{0xFF})
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 100.0, v, 0.01)
}

func TestDecodePIDUnknownReturnsNotOK(t *testing.T) {
	_, ok, err := DecodePID(0x99, []byte{0x01})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecodePIDErrorsOnShortInput(t *testing.T) {
	_, _, err := DecodePID(0x0C, []byte{0x01})
	assert.Error(t, err)
}

func TestNewFreezeFrameDecodesKnownKeepsUnknownRaw(t *testing.T) {
	ff := NewFreezeFrame("P0143", 0, map[byte][]byte{
		0x0C: {0x1A, 0xF8},
		0x99: {0xAB, 0xCD},
	})
	assert.Equal(t, 1726.0, ff.Decoded[0x0C])
	_, decoded := ff.Decoded[0x99]
	assert.False(t, decoded)
	assert.Equal(t, []byte{0xAB, 0xCD}, ff.RawByPID[0x99])
}
