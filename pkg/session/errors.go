package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	errEmptyResponse             = errors.New("session: empty response")
	errMalformedNegativeResponse = errors.New("session: negative response shorter than 3 bytes")

	// ErrNotSessionActive is returned by operations that require
	// SessionActive when the engine is in any other state.
	ErrNotSessionActive = errors.New("session: operation requires an active diagnostic session")
	// ErrNotReady is returned by start_session/initialize calls made from
	// the wrong state.
	ErrNotReady = errors.New("session: engine is not in a state that allows this transition")
)

// NRCAction classifies how the engine reacts to a given NRC byte.
type NRCAction int

const (
	// NRCSurface means the NRC becomes a *NegativeResponseError at the
	// engine's public surface with no local retry.
	NRCSurface NRCAction = iota
	// NRCRetryOnce means the engine reissues the request once more before
	// surfacing, counting against max_retries as usual.
	NRCRetryOnce
	// NRCRetryWithBackoff means the engine waits retry_delay_ms and
	// retries up to max_retries times.
	NRCRetryWithBackoff
	// NRCExtendTimer means the engine restarts the response timer with
	// extended_timeout_ms and loops without consuming a retry.
	NRCExtendTimer
	// NRCSecurityDenied means the NRC is non-retryable and the resulting
	// error is additionally flagged RequiresSecurity.
	NRCSecurityDenied
)

// NRCPolicy is the per-NRC-byte classification table driving retry
// behavior in Engine.Exchange. It is data, not a switch statement,
// so a vehicle profile or future NRC can extend it without touching
// control flow.
var NRCPolicy = map[byte]NRCAction{
	0x10: NRCSurface, // generalReject
	0x11: NRCSurface, // serviceNotSupported
	0x12: NRCSurface, // subFunctionNotSupported
	0x13: NRCSurface, // incorrectMessageLengthOrInvalidFormat
	0x14: NRCSurface, // responseTooLong
	0x21: NRCRetryWithBackoff, // busyRepeatRequest
	0x22: NRCSurface,          // conditionsNotCorrect
	0x23: NRCRetryWithBackoff, // routineNotComplete
	0x24: NRCRetryWithBackoff, // requestSequenceError
	0x25: NRCSurface,          // noResponseFromSubnetComponent
	0x26: NRCSurface,          // failurePreventsExecution
	0x31: NRCSurface,          // requestOutOfRange
	0x33: NRCSecurityDenied,   // securityAccessDenied
	0x35: NRCSecurityDenied,   // invalidKey
	0x36: NRCSecurityDenied,   // exceededNumberOfAttempts
	0x37: NRCSurface,          // requiredTimeDelayNotExpired
	0x70: NRCSurface,          // uploadDownloadNotAccepted
	0x71: NRCSurface,          // transferDataSuspended
	0x72: NRCSurface,          // generalProgrammingFailure
	0x73: NRCSurface,          // wrongBlockSequenceCounter
	0x78: NRCExtendTimer,      // responseCorrectlyReceivedPending
	0x7E: NRCSurface,          // subFunctionNotSupportedInActiveSession
	0x7F: NRCSurface,          // serviceNotSupportedInActiveSession
	0x81: NRCSurface,
	0x82: NRCSurface,
	0x83: NRCSurface,
	0x84: NRCSurface,
	0x85: NRCSurface,
	0x86: NRCSurface,
	0x87: NRCSurface,
	0x88: NRCSurface,
	0x89: NRCSurface,
	0x8A: NRCSurface,
	0x8B: NRCSurface,
	0x8C: NRCSurface,
	0x8D: NRCSurface,
	0x8E: NRCSurface,
	0x8F: NRCSurface,
	0x90: NRCSurface,
	0x91: NRCSurface,
	0x92: NRCSurface,
	0x93: NRCSurface,
}

// classifyNRC looks up an action for nrc, defaulting to a single retry
// for any NRC byte not named in the table — per the NRC handling rule,
// unrecognized NRCs are retried once rather than surfaced outright.
func classifyNRC(nrc byte) NRCAction {
	if action, ok := NRCPolicy[nrc]; ok {
		return action
	}
	return NRCRetryOnce
}

// NegativeResponseError is returned when an exchange's final outcome is
// a negative response the policy table marks non-retryable (or retries
// were exhausted on a retryable one).
type NegativeResponseError struct {
	Service         byte
	NRC             byte
	RequiresSecurity bool
	RetryCount      int
	Elapsed         time.Duration
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("session: service 0x%02X rejected with NRC 0x%02X after %d retries (%s)",
		e.Service, e.NRC, e.RetryCount, e.Elapsed)
}

// ProtocolViolation reports a malformed response: bad checksum,
// unexpected response service id, or an empty or truncated negative
// response. Never retried. Errors raised by an ISO-TP layer below the
// Exchanger reach Exchange as transport errors and are retried like
// them, not reported as a ProtocolViolation.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string { return "session: protocol violation: " + e.Reason }

// SessionLostError marks a keep-alive failure that forced the engine
// into Error(SessionLost). Only reset() recovers from it.
type SessionLostError struct {
	ConsecutiveFailures int
}

func (e *SessionLostError) Error() string {
	return fmt.Sprintf("session: keep-alive lost after %d consecutive failures", e.ConsecutiveFailures)
}
