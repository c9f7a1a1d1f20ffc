package config

import (
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"obdcore.dev/pkg/protocoltype"
)

// LoadVehicleProfile reads a `.ini` vehicle profile and produces a
// ProtocolConfig, the same layered config-file approach the teacher uses
// for its object dictionary sections, repurposed here for a
// [protocol]/[timeouts]/[isotp] section layout:
//
//	[protocol]
//	preferred = ISO157654CAN11Bit500K
//	target_ecu = 0x7E0
//	enable_j1939 = false
//
//	[timeouts]
//	response_ms = 1000
//	extended_ms = 5000
//	max_retries = 3
//	retry_backoff_ms = 200
//	keep_alive_ms = 2000
//
//	[isotp]
//	stmin_us = 0
//	block_size = 0
//	enable_padding = true
//	padding_byte = 0x00
func LoadVehicleProfile(path string) (*ProtocolConfig, error) {
	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: loading vehicle profile %q: %w", path, err)
	}

	b := NewConfigBuilder()

	if sec := f.Section("timeouts"); sec != nil {
		if v := sec.Key("response_ms").MustInt(0); v > 0 {
			b.ResponseTimeout(time.Duration(v) * time.Millisecond)
		}
		if v := sec.Key("extended_ms").MustInt(0); v > 0 {
			b.ExtendedTimeout(time.Duration(v) * time.Millisecond)
		}
		if v := sec.Key("max_retries").MustInt(-1); v >= 0 {
			b.MaxRetries(v)
		}
		if v := sec.Key("retry_backoff_ms").MustInt(0); v > 0 {
			b.RetryBackoff(time.Duration(v) * time.Millisecond)
		}
		if v := sec.Key("keep_alive_ms").MustInt(0); v > 0 {
			b.KeepAliveInterval(time.Duration(v) * time.Millisecond)
		}
	}

	if sec := f.Section("isotp"); sec != nil {
		stminUs := sec.Key("stmin_us").MustInt(0)
		blockSize := sec.Key("block_size").MustInt(0)
		b.ISOTPTiming(time.Duration(stminUs)*time.Microsecond, blockSize)
		if sec.HasKey("enable_padding") {
			pad := sec.Key("enable_padding").MustBool(true)
			padByte := byte(sec.Key("padding_byte").MustInt(0x00))
			b.EnablePadding(pad, padByte)
		}
	}

	if sec := f.Section("protocol"); sec != nil {
		if sec.HasKey("target_ecu") {
			addr, err := sec.Key("target_ecu").Uint64()
			if err != nil {
				return nil, fmt.Errorf("config: parsing target_ecu: %w", err)
			}
			b.TargetECU(uint32(addr))
		}
		if sec.HasKey("enable_j1939") {
			b.EnableJ1939(sec.Key("enable_j1939").MustBool(false))
		}
		if name := sec.Key("preferred").String(); name != "" {
			t, ok := protocolTypeByName[name]
			if !ok {
				return nil, fmt.Errorf("config: unknown preferred protocol %q", name)
			}
			b.PreferredProtocol(t)
		}
	}

	return b.Build(), nil
}

var protocolTypeByName = map[string]protocoltype.Type{
	"SAEJ1850PWM":            protocoltype.SAEJ1850PWM,
	"SAEJ1850VPW":            protocoltype.SAEJ1850VPW,
	"ISO91412":               protocoltype.ISO91412,
	"ISO142304KWPFast":       protocoltype.ISO142304KWPFast,
	"ISO142304KWP5Baud":      protocoltype.ISO142304KWP5Baud,
	"ISO157654CAN11Bit500K":  protocoltype.ISO157654CAN11Bit500K,
	"ISO157654CAN29Bit500K":  protocoltype.ISO157654CAN29Bit500K,
	"ISO157654CAN11Bit250K":  protocoltype.ISO157654CAN11Bit250K,
	"ISO157654CAN29Bit250K":  protocoltype.ISO157654CAN29Bit250K,
	"UDSOnCAN11Bit500K":      protocoltype.UDSOnCAN11Bit500K,
	"UDSOnCAN29Bit500K":      protocoltype.UDSOnCAN29Bit500K,
	"J1939":                  protocoltype.J1939,
}
