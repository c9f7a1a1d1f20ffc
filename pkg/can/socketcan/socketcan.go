// Package socketcan wraps github.com/brutella/can as a direct-CAN backend
// for obdcore, for adapters that expose a native CAN interface (e.g. a
// J2534 shim presenting as a SocketCAN device) instead of an ELM327
// AT-command byte stream.
package socketcan

import (
	sockcan "github.com/brutella/can"

	"obdcore.dev"
	"obdcore.dev/pkg/can"
)

func init() {
	can.RegisterInterface("socketcan", NewSocketCanBus)
}

type Bus struct {
	bus        *sockcan.Bus
	rxCallback obdcore.FrameListener
}

func (b *Bus) Connect(...any) error {
	go b.bus.ConnectAndPublish()
	return nil
}

func (b *Bus) Disconnect() error {
	return b.bus.Disconnect()
}

func (b *Bus) Send(frame obdcore.Frame) error {
	return b.bus.Publish(frame.ToCAN())
}

func (b *Bus) Subscribe(listener obdcore.FrameListener) error {
	b.rxCallback = listener
	// brutella/can defines its own "Handle" interface; we satisfy it below
	// and fan frames into obdcore's FrameListener from there.
	b.bus.Subscribe(b)
	return nil
}

// Handle satisfies brutella/can's receive callback interface.
func (b *Bus) Handle(frame sockcan.Frame) {
	if b.rxCallback != nil {
		b.rxCallback.Handle(obdcore.FrameFromCAN(frame))
	}
}

func NewSocketCanBus(name string) (obdcore.CANBus, error) {
	bus, err := sockcan.NewBusForInterfaceWithName(name)
	if err != nil {
		return nil, err
	}
	return &Bus{bus: bus}, nil
}
