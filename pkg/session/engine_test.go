package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdcore.dev/pkg/adapter"
	"obdcore.dev/pkg/config"
	"obdcore.dev/pkg/protocoltype"
)

// fakeExchanger answers Configure/Exchange from a scripted table keyed by
// the hex-ish request bytes, with an optional per-key response queue so
// a test can script "fail N times then succeed".
type fakeExchanger struct {
	mu        sync.Mutex
	responses map[string][][]byte
	errs      map[string][]error
	configureErr error
	exchangeCount int
}

func newFakeExchanger() *fakeExchanger {
	return &fakeExchanger{responses: make(map[string][][]byte), errs: make(map[string][]error)}
}

func key(req []byte) string { return string(req) }

func (f *fakeExchanger) on(req []byte, resp []byte) {
	f.responses[key(req)] = append(f.responses[key(req)], resp)
	f.errs[key(req)] = append(f.errs[key(req)], nil)
}

func (f *fakeExchanger) onErr(req []byte, err error) {
	f.responses[key(req)] = append(f.responses[key(req)], nil)
	f.errs[key(req)] = append(f.errs[key(req)], err)
}

func (f *fakeExchanger) Configure(profile []string, timeout time.Duration) error {
	return f.configureErr
}

func (f *fakeExchanger) Exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exchangeCount++
	k := key(payload)
	queue := f.responses[k]
	errQueue := f.errs[k]
	if len(queue) == 0 {
		return nil, &adapter.Error{Kind: adapter.ErrNoData, Raw: "NO DATA"}
	}
	resp := queue[0]
	err := errQueue[0]
	if len(queue) > 1 {
		f.responses[k] = queue[1:]
		f.errs[k] = errQueue[1:]
	}
	return resp, err
}

func testConfig() *config.ProtocolConfig {
	return config.NewConfigBuilder().
		ResponseTimeout(20 * time.Millisecond).
		ExtendedTimeout(50 * time.Millisecond).
		RetryBackoff(time.Millisecond).
		MaxRetries(2).
		KeepAliveInterval(10 * time.Millisecond).
		Build()
}

func newTestEngine(t *testing.T, ex *fakeExchanger) *Engine {
	t.Helper()
	e := New(ex, testConfig(), protocoltype.ISO157654CAN11Bit500K, nil)
	require.NoError(t, e.Initialize())
	return e
}

func TestInitializeTransitionsUninitializedToReady(t *testing.T) {
	e := newTestEngine(t, newFakeExchanger())
	state, _, _ := e.State()
	assert.Equal(t, Ready, state)
}

func TestInitializeRejectedFromNonUninitializedState(t *testing.T) {
	e := newTestEngine(t, newFakeExchanger())
	err := e.Initialize()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestStartSessionTransitionsToSessionActive(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x10, 0x03}, []byte{0x50, 0x03, 0x00, 0x32, 0x01, 0xF4})
	e := newTestEngine(t, ex)

	require.NoError(t, e.StartSession(config.SessionTypeExtended))
	state, sessType, _ := e.State()
	assert.Equal(t, SessionActive, state)
	assert.Equal(t, config.SessionTypeExtended.ID, sessType.ID)
	e.stopKeepAlive()
}

func TestStartSessionRejectedWhenNotReady(t *testing.T) {
	ex := newFakeExchanger()
	e := New(ex, testConfig(), protocoltype.ISO157654CAN11Bit500K, nil) // never Initialize()d
	err := e.StartSession(config.SessionTypeExtended)
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestEndSessionReturnsToReady(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x10, 0x03}, []byte{0x50, 0x03, 0x00, 0x32, 0x01, 0xF4})
	ex.on([]byte{0x10, 0x01}, []byte{0x50, 0x01, 0x00, 0x32, 0x01, 0xF4})
	e := newTestEngine(t, ex)
	require.NoError(t, e.StartSession(config.SessionTypeExtended))

	require.NoError(t, e.EndSession())
	state, _, _ := e.State()
	assert.Equal(t, Ready, state)
}

func TestExchangeRejectedOutsideReadyOrSessionActive(t *testing.T) {
	ex := newFakeExchanger()
	e := New(ex, testConfig(), protocoltype.ISO157654CAN11Bit500K, nil)
	_, err := e.Exchange(0x01, []byte{0x00})
	assert.ErrorIs(t, err, ErrNotSessionActive)
}

func TestExchangeReturnsPositiveResponse(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x01, 0x0C}, []byte{0x41, 0x0C, 0x1A, 0xF8})
	e := newTestEngine(t, ex)

	msg, err := e.Exchange(0x01, []byte{0x0C})
	require.NoError(t, err)
	assert.Equal(t, byte(0x41), msg.ServiceID)
	assert.False(t, msg.Negative)
}

func TestExchangeRejectsMismatchedResponseService(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x01, 0x0C}, []byte{0x42, 0x0C}) // wrong service id
	e := newTestEngine(t, ex)

	_, err := e.Exchange(0x01, []byte{0x0C})
	require.Error(t, err)
	var violation *ProtocolViolation
	assert.ErrorAs(t, err, &violation)
}

func TestExchangeNRC0x78ExtendsTimerWithoutCountingRetry(t *testing.T) {
	ex := newFakeExchanger()
	req := []byte{0x22, 0xF1, 0x90}
	ex.on(req, []byte{0x7F, 0x22, 0x78})
	ex.on(req, []byte{0x62, 0xF1, 0x90, 0x01, 0x02})
	e := newTestEngine(t, ex)

	msg, err := e.Exchange(0x22, []byte{0xF1, 0x90})
	require.NoError(t, err)
	assert.Equal(t, byte(0x62), msg.ServiceID)
	assert.Equal(t, 2, ex.exchangeCount)
}

func TestExchangeNRC0x21RetriesWithBackoffUpToMaxRetries(t *testing.T) {
	ex := newFakeExchanger()
	req := []byte{0x22, 0xF1, 0x90}
	ex.on(req, []byte{0x7F, 0x22, 0x21})
	ex.on(req, []byte{0x7F, 0x22, 0x21})
	ex.on(req, []byte{0x62, 0xF1, 0x90})
	e := newTestEngine(t, ex)

	msg, err := e.Exchange(0x22, []byte{0xF1, 0x90})
	require.NoError(t, err)
	assert.Equal(t, byte(0x62), msg.ServiceID)
}

func TestExchangeNRC0x33SecurityDeniedSurfacesImmediately(t *testing.T) {
	ex := newFakeExchanger()
	req := []byte{0x27, 0x01}
	ex.on(req, []byte{0x7F, 0x27, 0x33})
	e := newTestEngine(t, ex)

	_, err := e.Exchange(0x27, []byte{0x01})
	require.Error(t, err)
	var nrcErr *NegativeResponseError
	require.ErrorAs(t, err, &nrcErr)
	assert.True(t, nrcErr.RequiresSecurity)
	assert.Equal(t, 0, nrcErr.RetryCount) // no retry attempted
}

func TestExchangeRetryCapIsMaxRetriesPlusOneTransmissions(t *testing.T) {
	ex := newFakeExchanger()
	// every attempt times out (no scripted response -> ErrNoData each time)
	e := newTestEngine(t, ex)

	_, err := e.Exchange(0x01, []byte{0x99})
	require.Error(t, err)
	assert.Equal(t, e.cfg.MaxRetries()+1, ex.exchangeCount)
}

func TestKeepAliveLossTransitionsToError(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x10, 0x03}, []byte{0x50, 0x03})
	// every 0x3E 0x80 attempt fails with a hard timeout, not NO DATA
	req := []byte{0x3E, config.SuppressPositiveResponseBit}
	for i := 0; i < 10; i++ {
		ex.onErr(req, assertTimeoutErr{})
	}
	e := newTestEngine(t, ex)
	require.NoError(t, e.StartSession(config.SessionTypeExtended))

	require.Eventually(t, func() bool {
		state, _, _ := e.State()
		return state == Error
	}, 2*time.Second, 5*time.Millisecond)

	_, _, cause := e.State()
	var lost *SessionLostError
	require.ErrorAs(t, cause, &lost)
	assert.Equal(t, 3, lost.ConsecutiveFailures)
}

type assertTimeoutErr struct{}

func (assertTimeoutErr) Error() string { return "timeout" }

func TestResetReturnsErrorStateToReady(t *testing.T) {
	ex := newFakeExchanger()
	e := newTestEngine(t, ex)
	e.setState(stateSnapshot{state: Error, errCause: &SessionLostError{ConsecutiveFailures: 3}})

	require.NoError(t, e.Reset())
	state, _, cause := e.State()
	assert.Equal(t, Ready, state)
	assert.Nil(t, cause)
}

func TestCancelStopsExchangeBeforeNextAttempt(t *testing.T) {
	ex := newFakeExchanger()
	e := newTestEngine(t, ex)
	e.Cancel()

	_, err := e.Exchange(0x01, []byte{0x00})
	assert.Error(t, err)
	assert.Equal(t, 0, ex.exchangeCount)
}

func newTestEngineWithProtocol(t *testing.T, ex *fakeExchanger, protocol protocoltype.Type) *Engine {
	t.Helper()
	e := New(ex, testConfig(), protocol, nil)
	require.NoError(t, e.Initialize())
	return e
}

func TestExchangeAcceptsValidChecksumOnChecksummedProtocol(t *testing.T) {
	ex := newFakeExchanger()
	// 0x41, 0x0C, 0x1A, 0xF8 summed mod 256, appended as trailing checksum
	ex.on([]byte{0x01, 0x0C}, []byte{0x41, 0x0C, 0x1A, 0xF8, 0x5F})
	e := newTestEngineWithProtocol(t, ex, protocoltype.SAEJ1850PWM)

	msg, err := e.Exchange(0x01, []byte{0x0C})
	require.NoError(t, err)
	assert.Equal(t, byte(0x41), msg.ServiceID)
	assert.Equal(t, []byte{0x0C, 0x1A, 0xF8}, msg.Payload)
}

func TestExchangeRejectsBadChecksumOnChecksummedProtocol(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x01, 0x0C}, []byte{0x41, 0x0C, 0x1A, 0xF8, 0x00}) // wrong checksum
	e := newTestEngineWithProtocol(t, ex, protocoltype.SAEJ1850PWM)

	_, err := e.Exchange(0x01, []byte{0x0C})
	require.Error(t, err)
	var violation *ProtocolViolation
	assert.ErrorAs(t, err, &violation)
}

func TestExchangeSkipsChecksumValidationOnCANProtocol(t *testing.T) {
	ex := newFakeExchanger()
	ex.on([]byte{0x01, 0x0C}, []byte{0x41, 0x0C, 0x1A, 0xF8})
	e := newTestEngineWithProtocol(t, ex, protocoltype.ISO157654CAN11Bit500K)

	msg, err := e.Exchange(0x01, []byte{0x0C})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0C, 0x1A, 0xF8}, msg.Payload)
}

func TestShutdownIsTerminal(t *testing.T) {
	e := newTestEngine(t, newFakeExchanger())
	e.Shutdown()
	state, _, _ := e.State()
	assert.Equal(t, Shutdown, state)
}
