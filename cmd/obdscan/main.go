// Command obdscan is a minimal end-to-end example wiring the diagnostic
// core to a vehicle: connect, resolve the bus protocol (auto-detected over
// a serial-attached ELM327-class adapter, or fixed up front over a native
// CAN pass-through), start an extended session, read the VIN, read any
// stored DTCs, and print a live RPM sample.
package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"obdcore.dev"
	"obdcore.dev/pkg/adapter"
	"obdcore.dev/pkg/can"
	_ "obdcore.dev/pkg/can/socketcan"
	_ "obdcore.dev/pkg/can/virtual"
	"obdcore.dev/pkg/config"
	"obdcore.dev/pkg/detect"
	"obdcore.dev/pkg/dispatch"
	"obdcore.dev/pkg/protocoltype"
	"obdcore.dev/pkg/session"
	"obdcore.dev/pkg/telemetry"
	"obdcore.dev/pkg/transport/cannative"
	serialstream "obdcore.dev/pkg/transport/serial"
)

// canProtocols maps a -protocol flag value to the fixed wire protocol a
// native CAN transport already commits to by virtue of its physical
// bitrate and addressing; there is nothing to auto-detect the way there
// is over an ELM327 byte stream across several candidate bus speeds.
var canProtocols = map[string]protocoltype.Type{
	"obd-11-500k": protocoltype.ISO157654CAN11Bit500K,
	"obd-29-500k": protocoltype.ISO157654CAN29Bit500K,
	"obd-11-250k": protocoltype.ISO157654CAN11Bit250K,
	"obd-29-250k": protocoltype.ISO157654CAN29Bit250K,
	"uds-11-500k": protocoltype.UDSOnCAN11Bit500K,
	"uds-29-500k": protocoltype.UDSOnCAN29Bit500K,
}

func canProtocolNames() []string {
	names := make([]string, 0, len(canProtocols))
	for name := range canProtocols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func main() {
	log.SetLevel(log.InfoLevel)

	transportKind := flag.String("transport", "serial", `transport to the vehicle: "serial" (ELM327 AT-command byte stream) or "can" (native CAN pass-through)`)
	port := flag.String("port", "/dev/ttyUSB0", "serial port the OBD-II adapter is attached to (transport=serial)")
	baud := flag.Int("baud", 38400, "adapter serial baud rate (transport=serial)")
	make_ := flag.String("make", "", "vehicle make, used only to refine protocol detection order (transport=serial)")
	modelYear := flag.Int("year", 0, "vehicle model year, used only to refine protocol detection order (transport=serial)")
	canInterface := flag.String("can-interface", "socketcan", fmt.Sprintf("CAN backend (transport=can): %v", can.ImplementedInterfaces))
	canChannel := flag.String("can-channel", "can0", `CAN channel name, e.g. "can0" for socketcan or "host:port" for the virtual bus (transport=can)`)
	canProtocol := flag.String("protocol", "uds-11-500k", fmt.Sprintf("fixed wire protocol for transport=can: %v", canProtocolNames()))
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}

	bus := telemetry.New(256)
	logEvents(bus)

	var exchanger session.Exchanger
	var protocol protocoltype.Type

	switch *transportKind {
	case "can":
		ptype, ok := canProtocols[*canProtocol]
		if !ok {
			fmt.Fprintf(os.Stderr, "unknown -protocol %q, want one of %v\n", *canProtocol, canProtocolNames())
			os.Exit(1)
		}
		row, err := protocoltype.Lookup(ptype)
		if err != nil {
			fmt.Fprintln(os.Stderr, "protocol lookup:", err)
			os.Exit(1)
		}

		canBus, err := can.NewBus(*canInterface, *canChannel, row.BaudRate)
		if err != nil {
			fmt.Fprintln(os.Stderr, "can bus:", err)
			os.Exit(1)
		}
		if err := canBus.Connect(); err != nil {
			fmt.Fprintln(os.Stderr, "can connect:", err)
			os.Exit(1)
		}
		router := obdcore.NewFrameRouter(canBus)
		if err := canBus.Subscribe(router); err != nil {
			fmt.Fprintln(os.Stderr, "can subscribe:", err)
			os.Exit(1)
		}

		exchanger = cannative.New(router, row)
		protocol = ptype
		log.WithFields(log.Fields{"interface": *canInterface, "channel": *canChannel, "protocol": row.DisplayName}).Info("obdscan: native CAN transport ready")

	case "serial":
		stream := serialstream.New(*port, *baud)
		if err := stream.Connect(); err != nil {
			fmt.Fprintln(os.Stderr, "connect:", err)
			os.Exit(1)
		}
		defer stream.Disconnect()

		driver := adapter.New(stream)
		if err := driver.Reset(2 * time.Second); err != nil {
			fmt.Fprintln(os.Stderr, "adapter reset:", err)
			os.Exit(1)
		}

		detector := detect.New(driver)
		result := detector.Detect(detect.Hints{Make: *make_, ModelYear: *modelYear}, detect.Options{}, func(p detect.Progress) {
			if p.Kind == detect.EventTesting {
				log.Debugf("probing %s (%d/%d)", p.Protocol, p.Index+1, p.Total)
			}
		})
		if !result.Detected {
			fmt.Fprintln(os.Stderr, "protocol detection failed:", result.Reason)
			os.Exit(1)
		}
		log.Infof("detected protocol: %s", result.Protocol)

		exchanger = driver
		protocol = result.Protocol

	default:
		fmt.Fprintf(os.Stderr, "unknown -transport %q, want \"serial\" or \"can\"\n", *transportKind)
		os.Exit(1)
	}

	cfg := config.NewConfigBuilder().Build()
	engine := session.New(exchanger, cfg, protocol, bus)
	if err := engine.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, "initialize:", err)
		os.Exit(1)
	}
	if err := engine.StartSession(config.SessionTypeExtended); err != nil {
		fmt.Fprintln(os.Stderr, "start session:", err)
		os.Exit(1)
	}
	defer engine.EndSession()

	if vin, err := dispatch.ReadVIN(engine); err != nil {
		log.WithError(err).Warn("read vin failed")
	} else {
		fmt.Println("VIN:", vin)
	}

	if codes, err := dispatch.ReadStoredDTCs(engine); err != nil {
		log.WithError(err).Warn("read stored dtcs failed")
	} else if len(codes) == 0 {
		fmt.Println("no stored DTCs")
	} else {
		for _, c := range codes {
			fmt.Printf("DTC %s (%s)\n", c.Code, c.Kind)
		}
	}

	if reading, err := dispatch.ReadPID(engine, 0x0C); err != nil {
		log.WithError(err).Warn("read rpm failed")
	} else if reading.Decoded {
		fmt.Printf("RPM: %.0f\n", reading.Value)
	}
}

// logEvents drains the telemetry bus into logrus at debug level for the
// lifetime of the process; a real integration would hand the channel to
// a UI or persistence layer instead.
func logEvents(bus *telemetry.Bus) {
	ch, _ := bus.Subscribe()
	go func() {
		for ev := range ch {
			log.WithFields(ev.Fields).Debugf("telemetry: %s", ev.Kind)
		}
	}()
}
