// Package virtual implements a TCP-based virtual CAN bus: frames are
// length-prefixed and relayed through a broker process that echoes each
// one to every other connected client. It exists to exercise the direct
// CAN path (pkg/transport/cannative, pkg/isotp, obdcore.FrameRouter) in
// tests and CI without real hardware.
package virtual

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"obdcore.dev"
	"obdcore.dev/pkg/can"
)

func init() {
	can.RegisterInterface("virtual", Dial)
	can.RegisterInterface("virtualcan", Dial)
}

const (
	headerLen      = 4
	readPollPeriod = 200 * time.Millisecond
)

// Bus is a obdcore.CANBus backed by a TCP connection to a broker that fans
// frames out to every other client on the same channel (e.g. the same
// "host:port", standing in for a shared physical bus).
type Bus struct {
	addr string

	mu       sync.Mutex
	conn     net.Conn
	listener obdcore.FrameListener
	loopback bool

	running atomic.Bool
	degraded atomic.Bool
	closing  chan struct{}
	drained  sync.WaitGroup
}

// Dial constructs a Bus for addr ("host:port"). It does not connect until
// Connect is called.
func Dial(addr string) (obdcore.CANBus, error) {
	return &Bus{addr: addr}, nil
}

// Connect opens the TCP connection to the broker and disables Nagle's
// algorithm, since frames are small and latency-sensitive.
func (b *Bus) Connect(...any) error {
	conn, err := net.Dial("tcp", b.addr)
	if err != nil {
		return fmt.Errorf("obdcore: dial virtual CAN broker %s: %w", b.addr, err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()
	return nil
}

// Disconnect stops any running receive loop and closes the connection.
// Safe to call without a prior Connect, or more than once.
func (b *Bus) Disconnect() error {
	if b.running.CompareAndSwap(true, false) {
		close(b.closing)
		b.drained.Wait()
	}
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

// Send transmits frame to the broker. With loopback enabled (SetLoopback),
// the frame is additionally delivered to the local subscriber directly,
// which is how tests exercise both sides of an exchange without a broker.
func (b *Bus) Send(frame obdcore.Frame) error {
	b.mu.Lock()
	loopback := b.loopback
	listener := b.listener
	conn := b.conn
	b.mu.Unlock()

	if loopback && listener != nil {
		listener.Handle(frame)
	}
	if conn == nil {
		if loopback {
			return nil
		}
		return errors.New("obdcore: virtual CAN bus is not connected")
	}

	wire, err := encodeFrame(frame)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Millisecond))
	_, err = conn.Write(wire)
	return err
}

// Subscribe registers listener and, on first call, starts the background
// receive loop. Later calls just swap the listener.
func (b *Bus) Subscribe(listener obdcore.FrameListener) error {
	b.mu.Lock()
	b.listener = listener
	alreadyRunning := b.running.Load()
	b.mu.Unlock()
	if alreadyRunning {
		return nil
	}
	if !b.running.CompareAndSwap(false, true) {
		return nil
	}
	b.closing = make(chan struct{})
	b.degraded.Store(false)
	b.drained.Add(1)
	go b.receiveLoop()
	return nil
}

// SetLoopback enables local delivery of sent frames, for tests that don't
// run a broker process.
func (b *Bus) SetLoopback(loopback bool) {
	b.mu.Lock()
	b.loopback = loopback
	b.mu.Unlock()
}

func (b *Bus) receiveLoop() {
	defer func() {
		b.running.Store(false)
		b.drained.Done()
	}()
	for {
		select {
		case <-b.closing:
			return
		default:
		}

		frame, err := b.readFrame()
		var netErr net.Error
		switch {
		case errors.As(err, &netErr) && netErr.Timeout():
			continue
		case err != nil:
			log.WithError(err).Warn("obdcore: virtual CAN bus receive loop stopping")
			b.degraded.Store(true)
			return
		}

		b.mu.Lock()
		listener := b.listener
		b.mu.Unlock()
		if listener != nil {
			listener.Handle(*frame)
		}
	}
}

func (b *Bus) readFrame() (*obdcore.Frame, error) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("obdcore: virtual CAN bus has no active connection")
	}

	header := make([]byte, headerLen)
	if err := readExact(conn, header, readPollPeriod); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header)

	body := make([]byte, length)
	if err := readExact(conn, body, readPollPeriod); err != nil {
		return nil, err
	}
	return decodeFrame(body)
}

func readExact(conn net.Conn, buf []byte, timeout time.Duration) error {
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("obdcore: virtual CAN bus short read: expected %d bytes, got %d", len(buf), n)
	}
	return nil
}

// encodeFrame writes frame as a 4-byte big-endian length prefix followed
// by its binary encoding.
func encodeFrame(frame obdcore.Frame) ([]byte, error) {
	var body bytes.Buffer
	if err := binary.Write(&body, binary.BigEndian, frame); err != nil {
		return nil, err
	}
	out := make([]byte, headerLen, headerLen+body.Len())
	binary.BigEndian.PutUint32(out, uint32(body.Len()))
	return append(out, body.Bytes()...), nil
}

func decodeFrame(body []byte) (*obdcore.Frame, error) {
	var frame obdcore.Frame
	if err := binary.Read(bytes.NewReader(body), binary.BigEndian, &frame); err != nil {
		return nil, err
	}
	return &frame, nil
}
