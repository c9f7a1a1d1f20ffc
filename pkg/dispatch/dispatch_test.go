package dispatch

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdcore.dev/pkg/config"
	"obdcore.dev/pkg/protocoltype"
	"obdcore.dev/pkg/session"
)

type fakeExchanger struct {
	mu        sync.Mutex
	responses map[string][]byte
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{responses: make(map[string][]byte)}
}

func (f *fakeExchanger) on(req []byte, resp []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[string(req)] = resp
}

func (f *fakeExchanger) Configure(profile []string, timeout time.Duration) error { return nil }

func (f *fakeExchanger) Exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp, ok := f.responses[string(payload)]
	if !ok {
		return nil, assertNoResponse{}
	}
	return resp, nil
}

type assertNoResponse struct{}

func (assertNoResponse) Error() string { return "no scripted response" }

func newTestEngine(t *testing.T, ex *fakeExchanger) *session.Engine {
	t.Helper()
	cfg := config.NewConfigBuilder().
		ResponseTimeout(20 * time.Millisecond).
		RetryBackoff(time.Millisecond).
		MaxRetries(0).
		Build()
	e := session.New(ex, cfg, protocoltype.ISO157654CAN11Bit500K, nil)
	require.NoError(t, e.Initialize())
	return e
}

func TestReadPIDDecodesRPM(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x01, 0x0C}, []byte{0x41, 0x0C, 0x1A, 0xF8})
	e := newTestEngine(t, ex)

	reading, err := ReadPID(e, 0x0C)
	require.NoError(t, err)
	assert.True(t, reading.Decoded)
	assert.InDelta(t, 1726.0, reading.Value, 0.01)
}

func TestReadVINAssemblesReassembledPayload(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x09, 0x02}, append([]byte{0x49, 0x02, 0x01}, []byte("1HGCM82633A004352")...))
	e := newTestEngine(t, ex)

	vin, err := ReadVIN(e)
	require.NoError(t, err)
	assert.Equal(t, "1HGCM82633A004352", vin)
}

func TestReadStoredDTCsDecodesTwoCodes(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x03}, []byte{0x43, 0x02, 0x01, 0x43, 0x04, 0x20})
	e := newTestEngine(t, ex)

	codes, err := ReadStoredDTCs(e)
	require.NoError(t, err)
	require.Len(t, codes, 2)
	assert.Equal(t, "P0143", codes[0].Code)
	assert.Equal(t, "P0420", codes[1].Code)
	assert.Equal(t, "Stored", codes[0].Kind.String())
}

func TestClearDTCsSucceedsOnPositiveResponse(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x04}, []byte{0x44})
	e := newTestEngine(t, ex)

	require.NoError(t, ClearDTCs(e))
}

func TestReadDIDReturnsPayloadAfterEcho(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x22, 0xF1, 0x90}, []byte{0x62, 0xF1, 0x90, 0xAA, 0xBB})
	e := newTestEngine(t, ex)

	data, err := ReadDID(e, 0xF190)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0xBB}, data)
}

func TestSecurityAccessSeedThenKey(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x27, 0x01}, []byte{0x67, 0x01, 0x12, 0x34})
	ex.on([]byte{0x27, 0x02, 0x56, 0x78}, []byte{0x67, 0x02})
	e := newTestEngine(t, ex)

	seed, err := RequestSecuritySeed(e, 0x01)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x12, 0x34}, seed)

	require.NoError(t, SendSecurityKey(e, 0x02, []byte{0x56, 0x78}))
}

func TestRoutineControlReturnsResultsAfterEcho(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x31, 0x01, 0x02, 0x03}, []byte{0x71, 0x01, 0x02, 0x03, 0x00})
	e := newTestEngine(t, ex)

	result, err := RoutineControl(e, 0x01, 0x0203, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, result)
}

func TestECUResetSucceedsOnPositiveResponse(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x11, 0x01}, []byte{0x51, 0x01})
	e := newTestEngine(t, ex)

	require.NoError(t, ECUReset(e, 0x01))
}

func TestReadFreezeFrameAssemblesMultiplePIDs(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x02, 0x0C, 0x00}, []byte{0x42, 0x0C, 0x00, 0x1A, 0xF8})
	ex.on([]byte{0x02, 0x0D, 0x00}, []byte{0x42, 0x0D, 0x00, 0x50})
	e := newTestEngine(t, ex)

	ff, err := ReadFreezeFrame(e, "P0143", 0x00, []byte{0x0C, 0x0D})
	require.NoError(t, err)
	assert.InDelta(t, 1726.0, ff.Decoded[0x0C], 0.01)
	assert.InDelta(t, 80.0, ff.Decoded[0x0D], 0.01)
}
