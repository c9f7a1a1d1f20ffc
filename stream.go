// Package obdcore defines the wire-level primitives shared by every layer
// of the diagnostic protocol core: the byte-stream transport contract
// consumed from the adapter driver upward, and the CAN frame
// representation consumed by the ISO-TP frame layer.
package obdcore

import (
	"time"

	"github.com/brutella/can"
	"golang.org/x/sys/unix"
)

// ByteStream is the external transport collaborator. It is the only thing
// the core assumes about Bluetooth Classic/LE, WiFi,
// USB-serial or J2534 — whatever sits underneath is responsible for
// implementing these five operations over a line-oriented, CR-terminated
// ELM327-class adapter conversation.
type ByteStream interface {
	Write(p []byte) (int, error)
	Read(buf []byte, timeout time.Duration) (int, error)
	Available() int
	Clear() error
	IsConnected() bool
}

// Frame is the core's CAN wire representation: its own fixed-size struct,
// converted to and from brutella/can's Frame with ToCAN and FrameFromCAN
// where a backend talks to a real SocketCAN interface.
type Frame struct {
	ID      uint32
	Extended bool
	DLC     uint8
	Data    [8]byte
}

// ToCAN converts to the brutella/can wire type.
func (f Frame) ToCAN() can.Frame {
	var flags uint8
	if f.Extended {
		flags |= 0x80
	}
	return can.Frame{ID: f.ID, Length: f.DLC, Flags: flags, Data: f.Data}
}

// FrameFromCAN converts from the brutella/can wire type.
func FrameFromCAN(cf can.Frame) Frame {
	return Frame{ID: cf.ID, Extended: cf.Flags&0x80 != 0, DLC: cf.Length, Data: cf.Data}
}

// FrameListener receives raw CAN frames from a CANBus. Handle must not block.
type FrameListener interface {
	Handle(frame Frame)
}

// CANBus is the minimal interface a real CAN interface (SocketCAN, a PCAN/Kvaser
// dongle, a virtual loopback bus used in tests) must satisfy to back the ISO-TP
// frame layer directly, bypassing the ELM327 byte-stream path entirely. Most
// deployments never need this — the adapter driver emulates it over AT commands —
// but STN/OBDLink adapters exposing a native CAN pass-through mode, or a J2534
// shim, can implement it.
type CANBus interface {
	Connect(...any) error
	Disconnect() error
	Send(frame Frame) error
	Subscribe(listener FrameListener) error
}

// CAN 11-bit/29-bit identifier masks, the same golang.org/x/sys/unix
// constants the teacher's bus manager uses for SocketCAN id masking.
const (
	CANSFFMask = uint32(unix.CAN_SFF_MASK)
	CANEFFMask = uint32(unix.CAN_EFF_MASK)
	CANEFFFlag = uint32(unix.CAN_EFF_FLAG)
	CANRTRFlag = uint32(unix.CAN_RTR_FLAG)
)
