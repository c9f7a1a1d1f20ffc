package cannative

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdcore.dev"
	"obdcore.dev/pkg/isotp"
	"obdcore.dev/pkg/protocoltype"
)

// fakeECUBus simulates a single responding ECU on the other end of the CAN
// bus: it reassembles whatever the Exchanger sends with its own
// isotp.Assembler (emitting Flow Control the same way a real ECU would)
// and, once a full request is in hand, replies with a scripted payload.
type fakeECUBus struct {
	mu       sync.Mutex
	listener obdcore.FrameListener
	asm      *isotp.Assembler
	respond  func(request []byte) []byte
	sent     [][]byte
}

func newFakeECUBus(respond func([]byte) []byte) *fakeECUBus {
	b := &fakeECUBus{respond: respond}
	b.asm = isotp.NewAssembler(time.Second, 0, 0)
	b.asm.SendFlowControl = func(frame []byte) error {
		b.deliver(obdcore.Frame{ID: 0x7E8, DLC: uint8(len(frame)), Data: as8(frame)})
		return nil
	}
	return b
}

func (b *fakeECUBus) Connect(...any) error { return nil }
func (b *fakeECUBus) Disconnect() error    { return nil }

func (b *fakeECUBus) Subscribe(listener obdcore.FrameListener) error {
	b.mu.Lock()
	b.listener = listener
	b.mu.Unlock()
	return nil
}

// Send is called by the Exchanger under test; it plays the ECU's side.
func (b *fakeECUBus) Send(frame obdcore.Frame) error {
	b.mu.Lock()
	b.sent = append(b.sent, append([]byte{}, frame.Data[:frame.DLC]...))
	b.mu.Unlock()

	decoded, err := isotp.Decode(frame.Data[:frame.DLC])
	if err != nil {
		return err
	}
	msg, done, err := b.asm.Feed(decoded, time.Now())
	if err != nil {
		return err
	}
	if !done {
		return nil
	}

	reply := b.respond(msg)
	if reply == nil {
		return nil
	}
	frames, err := isotp.Encode(reply)
	if err != nil {
		return err
	}
	go func() {
		for _, f := range frames {
			b.deliver(obdcore.Frame{ID: 0x7E8, DLC: uint8(len(f)), Data: as8(f)})
			time.Sleep(time.Millisecond)
		}
	}()
	return nil
}

func (b *fakeECUBus) deliver(frame obdcore.Frame) {
	b.mu.Lock()
	listener := b.listener
	b.mu.Unlock()
	if listener != nil {
		listener.Handle(frame)
	}
}

func as8(data []byte) [8]byte {
	var out [8]byte
	copy(out[:], data)
	return out
}

func testRow() protocoltype.Row {
	row, _ := protocoltype.Lookup(protocoltype.ISO157654CAN11Bit500K)
	return row
}

func TestExchangeSingleFrameRoundTrip(t *testing.T) {
	bus := newFakeECUBus(func(req []byte) []byte {
		assert.Equal(t, []byte{0x01, 0x0C}, req)
		return []byte{0x41, 0x0C, 0x1A, 0xF8}
	})
	router := obdcore.NewFrameRouter(bus)
	require.NoError(t, bus.Subscribe(router))

	ex := New(router, testRow())
	resp, err := ex.Exchange([]byte{0x01, 0x0C}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x0C, 0x1A, 0xF8}, resp)
}

func TestExchangeSegmentsMultiFrameRequestAndReassemblesResponse(t *testing.T) {
	longData := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0A}
	request := append([]byte{0x2E, 0xF1, 0x90}, longData...)

	bus := newFakeECUBus(func(req []byte) []byte {
		assert.Equal(t, request, req)
		// long positive-response echo, forcing reassembly on the way back too
		return append([]byte{0x6E, 0xF1, 0x90}, longData...)
	})
	router := obdcore.NewFrameRouter(bus)
	require.NoError(t, bus.Subscribe(router))

	ex := New(router, testRow())
	resp, err := ex.Exchange(request, time.Second)
	require.NoError(t, err)
	assert.Equal(t, append([]byte{0x6E, 0xF1, 0x90}, longData...), resp)

	require.Greater(t, len(bus.sent), 1, "request should have been segmented into more than one CAN frame")
}

func TestConfigureIsNoopOnNativeCANTransport(t *testing.T) {
	bus := newFakeECUBus(func(req []byte) []byte { return nil })
	router := obdcore.NewFrameRouter(bus)
	ex := New(router, testRow())
	assert.NoError(t, ex.Configure([]string{"ATE0", "ATSP6"}, time.Second))
}

func TestExchangeTimesOutWithNoResponder(t *testing.T) {
	bus := newFakeECUBus(func(req []byte) []byte { return nil })
	router := obdcore.NewFrameRouter(bus)
	require.NoError(t, bus.Subscribe(router))

	// row with an address no ECU answers on, so nothing ever arrives back
	row := testRow()
	row.ResponseAddr = 0x7EA

	ex := New(router, row)
	_, err := ex.Exchange([]byte{0x01, 0x0C}, 30*time.Millisecond)
	assert.Error(t, err)
}
