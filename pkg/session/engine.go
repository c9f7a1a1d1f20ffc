// Package session is the diagnostic session engine: it owns protocol
// state, serializes every exchange through one adapter, applies the NRC
// and retry policy, and drives the Tester Present keep-alive timer.
// Everything above this layer (pkg/dispatch) talks to vehicles only
// through an *Engine.
package session

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"obdcore.dev/internal/chk"
	"obdcore.dev/pkg/adapter"
	"obdcore.dev/pkg/config"
	"obdcore.dev/pkg/protocoltype"
	"obdcore.dev/pkg/telemetry"
)

// Exchanger is what the engine needs from the transport layer below it.
// *adapter.Driver satisfies this; tests substitute a fake.
type Exchanger interface {
	Configure(profile []string, timeout time.Duration) error
	Exchange(payload []byte, timeout time.Duration) ([]byte, error)
}

type keepAliveHandle struct {
	stop chan struct{}
	done chan struct{}
}

// Engine is the diagnostic session state machine. It is safe for
// concurrent use: state reads/writes go through stateMu, and every
// exchange (user-initiated or keep-alive) is serialized through msgMu so
// the two are never interleaved on the wire.
type Engine struct {
	exchanger Exchanger
	cfg       *config.ProtocolConfig
	protocol  protocoltype.Type
	row       protocoltype.Row
	bus       *telemetry.Bus

	stateMu sync.Mutex
	state   stateSnapshot

	msgMu sync.Mutex
	seq   atomic.Uint64

	cancelled atomic.Bool

	kaMu sync.Mutex
	ka   *keepAliveHandle

	ecus *ecuRegistry
}

// New constructs an Engine bound to exchanger for the given protocol and
// configuration. bus may be nil; a nil bus silently drops every event.
func New(exchanger Exchanger, cfg *config.ProtocolConfig, protocol protocoltype.Type, bus *telemetry.Bus) *Engine {
	return &Engine{
		exchanger: exchanger,
		cfg:       cfg,
		protocol:  protocol,
		bus:       bus,
		ecus:      newECURegistry(),
		state:     stateSnapshot{state: Uninitialized},
	}
}

// Initialize applies the protocol's AT-command configuration profile and
// moves Uninitialized -> Ready. Keep-alive stays idle until StartSession.
func (e *Engine) Initialize() error {
	if snap := e.snapshotState(); snap.state != Uninitialized {
		return fmt.Errorf("session: initialize: %w", ErrNotReady)
	}
	row, err := protocoltype.Lookup(e.protocol)
	if err != nil {
		return err
	}
	if err := e.exchanger.Configure(row.ATProfile, e.cfg.ResponseTimeout()); err != nil {
		return fmt.Errorf("session: initialize: %w", err)
	}
	e.row = row
	e.setState(stateSnapshot{state: Ready})
	return nil
}

// State returns the current lifecycle state plus, when SessionActive,
// the live session type, and when Error, the cause.
func (e *Engine) State() (ProtocolState, config.SessionType, error) {
	snap := e.snapshotState()
	return snap.state, snap.sessionType, snap.errCause
}

// StartSession issues DiagnosticSessionControl for sessionType and, on a
// positive response, transitions Ready -> SessionActive and starts the
// keep-alive timer if the session type requires it.
func (e *Engine) StartSession(sessionType config.SessionType) error {
	if snap := e.snapshotState(); snap.state != Ready {
		return fmt.Errorf("session: start_session: %w", ErrNotReady)
	}
	subFn := sessionType.SubFunctionByte(false)
	if _, err := e.Exchange(0x10, []byte{subFn}); err != nil {
		return fmt.Errorf("session: start_session: %w", err)
	}
	e.setState(stateSnapshot{state: SessionActive, sessionType: sessionType})
	e.emit(telemetry.SessionStarted, log.Fields{"session": sessionType.Name})
	if sessionType.KeepAliveRequired {
		e.startKeepAlive()
	}
	return nil
}

// EndSession cancels the keep-alive timer, best-effort returns the ECU
// to the default session, and transitions SessionActive -> Ready.
func (e *Engine) EndSession() error {
	if snap := e.snapshotState(); snap.state != SessionActive {
		return fmt.Errorf("session: end_session: %w", ErrNotReady)
	}
	e.stopKeepAlive()
	if _, err := e.Exchange(0x10, []byte{byte(config.SessionDefault)}); err != nil {
		log.WithError(err).Debug("session: best-effort return to default session failed")
	}
	e.setState(stateSnapshot{state: Ready})
	e.emit(telemetry.SessionEnded, log.Fields{"reason": "end_session"})
	return nil
}

// Reset clears an Error state back to Ready, cancelling any leftover
// keep-alive and resetting the sequence counter.
func (e *Engine) Reset() error {
	if snap := e.snapshotState(); snap.state != Error {
		return fmt.Errorf("session: reset: %w", ErrNotReady)
	}
	e.stopKeepAlive()
	e.seq.Store(0)
	e.cancelled.Store(false)
	e.setState(stateSnapshot{state: Ready})
	return nil
}

// Shutdown is the terminal transition from any non-terminal state.
func (e *Engine) Shutdown() {
	e.stopKeepAlive()
	e.cancelled.Store(true)
	e.setState(stateSnapshot{state: Shutdown})
}

// Cancel sets the cooperative cancellation flag checked between
// transmissions inside Exchange. It never aborts a PDU already in
// flight; the current request/response pair always completes or times
// out on its own before Exchange observes the cancellation.
func (e *Engine) Cancel() { e.cancelled.Store(true) }

// ECU returns a snapshot of addr's registry entry.
func (e *Engine) ECU(addr uint32) (ECU, bool) { return e.ecus.get(addr) }

// ECUs returns a snapshot of every discovered ECU.
func (e *Engine) ECUs() []ECU { return e.ecus.all() }

// Exchange sends one service request and returns its response, applying
// the NRC policy table and retry/backoff rules. Every caller-initiated PDU
// goes through here; the keep-alive timer's Tester Present goes through
// sendKeepAlive, which holds the same msgMu.
func (e *Engine) Exchange(serviceID byte, payload []byte) (DiagnosticMessage, error) {
	if snap := e.snapshotState(); snap.state != Ready && snap.state != SessionActive {
		return DiagnosticMessage{}, ErrNotSessionActive
	}

	e.msgMu.Lock()
	defer e.msgMu.Unlock()

	seq := e.seq.Add(1)
	timeout := e.cfg.TimeoutForService(serviceID)
	reqBytes := append([]byte{serviceID}, payload...)

	targetAddr, hasTarget := e.cfg.TargetECUOverride()

	retries := 0
	retriedOnce := false
	for {
		if e.cancelled.Load() {
			return DiagnosticMessage{}, fmt.Errorf("session: exchange cancelled")
		}

		e.emit(telemetry.MessageSent, log.Fields{"service": fmt.Sprintf("0x%02X", serviceID), "seq": seq, "attempt": retries})

		raw, err := e.exchanger.Exchange(reqBytes, timeout)
		if err != nil {
			e.emit(telemetry.TimeoutOccurred, log.Fields{"service": fmt.Sprintf("0x%02X", serviceID), "seq": seq, "err": err.Error()})
			if retries >= e.cfg.MaxRetries() {
				return DiagnosticMessage{}, fmt.Errorf("session: exchange 0x%02X failed after %d retries: %w", serviceID, retries, err)
			}
			retries++
			time.Sleep(e.cfg.RetryBackoff())
			continue
		}

		if e.row.Category != protocoltype.CategoryCAN && e.row.ChecksumPolicy != chk.PolicyNone {
			if !chk.Verify(e.row.ChecksumPolicy, raw) {
				e.emit(telemetry.ErrorOccurred, log.Fields{"service": fmt.Sprintf("0x%02X", serviceID), "seq": seq, "err": "bad checksum"})
				return DiagnosticMessage{}, &ProtocolViolation{Reason: fmt.Sprintf("bad %s checksum on response to 0x%02X", e.row.ChecksumPolicy, serviceID)}
			}
			raw = chk.Strip(e.row.ChecksumPolicy, raw)
		}

		msg, derr := decodeResponse(raw, seq)
		if derr != nil {
			return DiagnosticMessage{}, &ProtocolViolation{Reason: derr.Error()}
		}

		if msg.Negative {
			e.emit(telemetry.NegativeResponseReceived, log.Fields{
				"service": fmt.Sprintf("0x%02X", serviceID), "nrc": fmt.Sprintf("0x%02X", msg.NRC), "seq": seq,
			})
			switch classifyNRC(msg.NRC) {
			case NRCExtendTimer:
				timeout = e.cfg.ExtendedTimeout()
				continue
			case NRCRetryWithBackoff:
				if retries >= e.cfg.MaxRetries() {
					return DiagnosticMessage{}, &NegativeResponseError{Service: serviceID, NRC: msg.NRC, RetryCount: retries}
				}
				retries++
				time.Sleep(e.cfg.RetryBackoff())
				continue
			case NRCRetryOnce:
				if retriedOnce || retries >= e.cfg.MaxRetries() {
					return DiagnosticMessage{}, &NegativeResponseError{Service: serviceID, NRC: msg.NRC, RetryCount: retries}
				}
				retriedOnce = true
				retries++
				continue
			case NRCSecurityDenied:
				return DiagnosticMessage{}, &NegativeResponseError{Service: serviceID, NRC: msg.NRC, RequiresSecurity: true, RetryCount: retries}
			default: // NRCSurface
				return DiagnosticMessage{}, &NegativeResponseError{Service: serviceID, NRC: msg.NRC, RetryCount: retries}
			}
		}

		expected := serviceID + 0x40
		if msg.ServiceID != expected {
			return DiagnosticMessage{}, &ProtocolViolation{
				Reason: fmt.Sprintf("expected response service 0x%02X, got 0x%02X", expected, msg.ServiceID),
			}
		}

		if hasTarget {
			e.ecus.touch(targetAddr)
			e.ecus.recordService(targetAddr, serviceID)
			msg.TargetAddr = targetAddr
			msg.HasAddressing = true
		}

		e.emit(telemetry.MessageReceived, log.Fields{"service": fmt.Sprintf("0x%02X", msg.ServiceID), "seq": seq})
		return msg, nil
	}
}

func (e *Engine) snapshotState() stateSnapshot {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(next stateSnapshot) {
	e.stateMu.Lock()
	prev := e.state
	e.state = next
	e.stateMu.Unlock()
	e.emit(telemetry.StateChanged, log.Fields{"from": prev.state.String(), "to": next.state.String()})
}

func (e *Engine) emit(kind telemetry.Kind, fields log.Fields) {
	if e.bus == nil {
		return
	}
	e.bus.Emit(kind, fields)
}

// startKeepAlive launches the Tester Present timer goroutine. Its
// exchanges go through the same msgMu as Exchange, so a keep-alive tick
// never interleaves with a user exchange's request/response pair.
func (e *Engine) startKeepAlive() {
	stop := make(chan struct{})
	done := make(chan struct{})
	e.kaMu.Lock()
	e.ka = &keepAliveHandle{stop: stop, done: done}
	e.kaMu.Unlock()
	go e.runKeepAlive(stop, done)
}

func (e *Engine) stopKeepAlive() {
	e.kaMu.Lock()
	ka := e.ka
	e.ka = nil
	e.kaMu.Unlock()
	if ka == nil {
		return
	}
	close(ka.stop)
	<-ka.done
}

func (e *Engine) runKeepAlive(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.KeepAliveInterval())
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := e.sendKeepAlive(); err != nil {
				failures++
				log.WithError(err).WithField("consecutive_failures", failures).Warn("session: keep-alive failed")
				if failures >= 3 {
					e.setState(stateSnapshot{state: Error, errCause: &SessionLostError{ConsecutiveFailures: failures}})
					e.emit(telemetry.SessionEnded, log.Fields{"reason": "keep_alive_lost"})
					return
				}
				continue
			}
			failures = 0
			e.emit(telemetry.KeepAliveSent, nil)
		}
	}
}

// sendKeepAlive issues Tester Present with the suppress-positive-response
// bit set. Since the ECU does not reply when suppressed, an adapter-level
// "no data" outcome is the expected success case here; only a harder
// transport failure (timeout, disconnect, busy) counts as a keep-alive
// failure.
func (e *Engine) sendKeepAlive() error {
	e.msgMu.Lock()
	defer e.msgMu.Unlock()

	timeout := e.cfg.TimeoutForService(0x3E)
	_, err := e.exchanger.Exchange([]byte{0x3E, config.SuppressPositiveResponseBit}, timeout)
	if err == nil {
		return nil
	}
	var adapterErr *adapter.Error
	if errors.As(err, &adapterErr) && adapterErr.Kind == adapter.ErrNoData {
		return nil
	}
	return err
}
