// Package serial implements obdcore.ByteStream over a physical USB/Bluetooth
// SPP serial port, the transport an ELM327/STN/OBDLink adapter is most
// commonly reached through outside of a native CAN pass-through setup.
package serial

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"

	"obdcore.dev"
)

// Stream wraps a go.bug.st/serial port as an obdcore.ByteStream. It owns
// the port exclusively once Connect succeeds.
type Stream struct {
	portName string
	baudRate int

	mu        sync.Mutex
	port      serial.Port
	connected bool
}

// New returns a Stream for portName (e.g. "/dev/ttyUSB0", "COM4") at
// baudRate. Call Connect before handing it to the adapter driver.
func New(portName string, baudRate int) *Stream {
	return &Stream{portName: portName, baudRate: baudRate}
}

// Connect opens the serial port with 8N1 framing, the standard wire
// format for ELM327-class adapters.
func (s *Stream) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.portName, mode)
	if err != nil {
		return err
	}
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = port.Close()
		return err
	}
	s.port = port
	s.connected = true
	log.WithFields(log.Fields{"port": s.portName, "baud": s.baudRate}).Info("serial: connected")
	return nil
}

// Disconnect closes the port. Calling it twice, or before Connect, is a
// no-op.
func (s *Stream) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected || s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	s.connected = false
	return err
}

func (s *Stream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, obdcore.ErrNotConnected
	}
	return s.port.Write(p)
}

// Read sets the port's read deadline to timeout and performs one read.
// Per the adapter driver's own polling contract, a short read (including
// zero bytes) is not itself an error; only a genuine port failure is.
func (s *Stream) Read(buf []byte, timeout time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, obdcore.ErrNotConnected
	}
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	return s.port.Read(buf)
}

// Available is unsupported by go.bug.st/serial's cross-platform API and
// always reports zero; the adapter driver does not call it.
func (s *Stream) Available() int { return 0 }

// Clear discards anything queued in the OS input buffer.
func (s *Stream) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return nil
	}
	return s.port.ResetInputBuffer()
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}
