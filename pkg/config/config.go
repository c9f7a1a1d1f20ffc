// Package config holds the immutable diagnostic session configuration and
// the capability descriptors derived from it, following the teacher's
// convention of configuration objects that become read-only once
// constructed and are never mutated from inside the engine.
package config

import (
	"time"

	"obdcore.dev/pkg/protocoltype"
)

// ProtocolConfig is the immutable bundle of numeric contracts the session
// engine, frame layer, and adapter driver are parameterized by. Build it
// through NewConfigBuilder; there is no exported way to mutate one after
// Build() returns.
type ProtocolConfig struct {
	responseTimeout  time.Duration
	extendedTimeout  time.Duration
	maxRetries       int
	retryBackoff     time.Duration
	keepAliveInterval time.Duration

	enablePadding bool
	paddingByte   byte

	enableExtendedAddressing bool
	extendedAddressByte      byte

	canBitrate int
	isotpSTmin time.Duration
	isotpBlockSize int

	perServiceTimeout map[byte]time.Duration

	preferredProtocol   protocoltype.Type
	hasPreferredProtocol bool

	targetECUAddress   uint32
	hasTargetECUOverride bool

	enableStructuredLogging bool
	enableJ1939             bool
}

func (c *ProtocolConfig) ResponseTimeout() time.Duration   { return c.responseTimeout }
func (c *ProtocolConfig) ExtendedTimeout() time.Duration   { return c.extendedTimeout }
func (c *ProtocolConfig) MaxRetries() int                  { return c.maxRetries }
func (c *ProtocolConfig) RetryBackoff() time.Duration      { return c.retryBackoff }
func (c *ProtocolConfig) KeepAliveInterval() time.Duration { return c.keepAliveInterval }

func (c *ProtocolConfig) PaddingEnabled() bool { return c.enablePadding }
func (c *ProtocolConfig) PaddingByte() byte    { return c.paddingByte }

func (c *ProtocolConfig) ExtendedAddressingEnabled() bool { return c.enableExtendedAddressing }
func (c *ProtocolConfig) ExtendedAddressByte() byte       { return c.extendedAddressByte }

func (c *ProtocolConfig) CANBitrate() int             { return c.canBitrate }
func (c *ProtocolConfig) ISOTPSTmin() time.Duration   { return c.isotpSTmin }
func (c *ProtocolConfig) ISOTPBlockSize() int         { return c.isotpBlockSize }
func (c *ProtocolConfig) StructuredLoggingEnabled() bool { return c.enableStructuredLogging }
func (c *ProtocolConfig) J1939Enabled() bool          { return c.enableJ1939 }

// TimeoutForService returns the per-service override if one was
// configured, else the default response timeout.
func (c *ProtocolConfig) TimeoutForService(serviceID byte) time.Duration {
	if d, ok := c.perServiceTimeout[serviceID]; ok {
		return d
	}
	return c.responseTimeout
}

// PreferredProtocol returns the configured preference, if any.
func (c *ProtocolConfig) PreferredProtocol() (protocoltype.Type, bool) {
	return c.preferredProtocol, c.hasPreferredProtocol
}

// TargetECUOverride returns a fixed ECU address to address all requests
// to, bypassing the session engine's usual ECU registry lookup.
func (c *ProtocolConfig) TargetECUOverride() (uint32, bool) {
	return c.targetECUAddress, c.hasTargetECUOverride
}

// Builder constructs a ProtocolConfig via chained calls, mirroring the
// fluent client builders in the pack. Each method returns the same
// builder; Build() produces the immutable value.
type Builder struct {
	cfg ProtocolConfig
}

// NewConfigBuilder seeds sensible defaults matching the documented
// defaults throughout this core (1s response timeout, 5s extended, 3
// retries, 2s keep-alive).
func NewConfigBuilder() *Builder {
	b := &Builder{}
	b.cfg.responseTimeout = time.Second
	b.cfg.extendedTimeout = 5 * time.Second
	b.cfg.maxRetries = 3
	b.cfg.retryBackoff = 200 * time.Millisecond
	b.cfg.keepAliveInterval = 2 * time.Second
	b.cfg.enablePadding = true
	b.cfg.paddingByte = 0x00
	b.cfg.canBitrate = 500000
	b.cfg.isotpSTmin = 0
	b.cfg.isotpBlockSize = 0
	b.cfg.perServiceTimeout = make(map[byte]time.Duration)
	return b
}

func (b *Builder) ResponseTimeout(d time.Duration) *Builder   { b.cfg.responseTimeout = d; return b }
func (b *Builder) ExtendedTimeout(d time.Duration) *Builder   { b.cfg.extendedTimeout = d; return b }
func (b *Builder) MaxRetries(n int) *Builder                  { b.cfg.maxRetries = n; return b }
func (b *Builder) RetryBackoff(d time.Duration) *Builder      { b.cfg.retryBackoff = d; return b }
func (b *Builder) KeepAliveInterval(d time.Duration) *Builder { b.cfg.keepAliveInterval = d; return b }

func (b *Builder) EnablePadding(pad bool, padByte byte) *Builder {
	b.cfg.enablePadding = pad
	b.cfg.paddingByte = padByte
	return b
}

func (b *Builder) EnableExtendedAddressing(enable bool, addrByte byte) *Builder {
	b.cfg.enableExtendedAddressing = enable
	b.cfg.extendedAddressByte = addrByte
	return b
}

func (b *Builder) CANBitrate(bitrate int) *Builder { b.cfg.canBitrate = bitrate; return b }

func (b *Builder) ISOTPTiming(stmin time.Duration, blockSize int) *Builder {
	b.cfg.isotpSTmin = stmin
	b.cfg.isotpBlockSize = blockSize
	return b
}

func (b *Builder) ServiceTimeout(serviceID byte, d time.Duration) *Builder {
	b.cfg.perServiceTimeout[serviceID] = d
	return b
}

func (b *Builder) PreferredProtocol(t protocoltype.Type) *Builder {
	b.cfg.preferredProtocol = t
	b.cfg.hasPreferredProtocol = true
	return b
}

func (b *Builder) TargetECU(addr uint32) *Builder {
	b.cfg.targetECUAddress = addr
	b.cfg.hasTargetECUOverride = true
	return b
}

func (b *Builder) EnableStructuredLogging(enable bool) *Builder {
	b.cfg.enableStructuredLogging = enable
	return b
}

func (b *Builder) EnableJ1939(enable bool) *Builder {
	b.cfg.enableJ1939 = enable
	return b
}

// Build freezes the builder's state into an immutable ProtocolConfig. The
// returned value shares no mutable state with the builder: the
// per-service timeout map is copied.
func (b *Builder) Build() *ProtocolConfig {
	out := b.cfg
	out.perServiceTimeout = make(map[byte]time.Duration, len(b.cfg.perServiceTimeout))
	for k, v := range b.cfg.perServiceTimeout {
		out.perServiceTimeout[k] = v
	}
	return &out
}
