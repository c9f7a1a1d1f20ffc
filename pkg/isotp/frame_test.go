package isotp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeSingleAndDecode(t *testing.T) {
	sf, err := EncodeSingle([]byte{0x01, 0x0C})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x01, 0x0C}, sf)

	frame, err := Decode(sf)
	require.NoError(t, err)
	assert.Equal(t, KindSingle, frame.Kind)
	assert.Equal(t, []byte{0x01, 0x0C}, frame.Payload)
}

func TestEncodeFirstAndDecode(t *testing.T) {
	ff, err := EncodeFirst(20, []byte{0x49, 0x02, 0x01, 0x31, 0x48, 0x47})
	require.NoError(t, err)
	assert.Equal(t, byte(0x10), ff[0])
	assert.Equal(t, byte(0x14), ff[1])

	frame, err := Decode(ff)
	require.NoError(t, err)
	assert.Equal(t, KindFirst, frame.Kind)
	assert.Equal(t, 20, frame.TotalLength)
}

func TestEncodeConsecutiveSequenceWraps(t *testing.T) {
	cf, err := EncodeConsecutive(15, []byte{0x01})
	require.NoError(t, err)
	assert.Equal(t, byte(0x2F), cf[0])
}

func TestDecodeSeparationTime(t *testing.T) {
	ms, isMicros, err := DecodeSeparationTime(0x0A)
	require.NoError(t, err)
	assert.Equal(t, 10, ms)
	assert.False(t, isMicros)

	us, isMicros, err := DecodeSeparationTime(0xF3)
	require.NoError(t, err)
	assert.Equal(t, 300, us)
	assert.True(t, isMicros)

	_, _, err = DecodeSeparationTime(0x80)
	assert.Error(t, err)
}

func TestEncodeSeparationTimeHelpers(t *testing.T) {
	b, err := EncodeSeparationTimeMillis(50)
	require.NoError(t, err)
	assert.Equal(t, byte(50), b)

	b, err = EncodeSeparationTimeMicros(300)
	require.NoError(t, err)
	assert.Equal(t, byte(0xF3), b)

	_, err = EncodeSeparationTimeMicros(250)
	assert.Error(t, err, "not a multiple of 100")
}

func TestPadPadsShortFramesOnly(t *testing.T) {
	padded := Pad([]byte{0x02, 0x01, 0x0C}, 0xAA)
	assert.Equal(t, []byte{0x02, 0x01, 0x0C, 0xAA, 0xAA, 0xAA, 0xAA, 0xAA}, padded)

	full := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	assert.Equal(t, full, Pad(full, 0))
}

func TestEncodeRejectsOversizedAndEmptyPayloads(t *testing.T) {
	_, err := Encode(nil)
	assert.Error(t, err)

	_, err = Encode(make([]byte, MaxReassembledLength+1))
	assert.Error(t, err)
}
