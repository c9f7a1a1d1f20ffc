// Package adapter is the ELM327/STN/OBDLink AT-command control layer: it
// turns configuration intents into AT commands, sends hex-encoded
// requests, and normalizes the adapter's line-oriented replies back into
// raw bytes.
package adapter

import (
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"obdcore.dev"
	"obdcore.dev/internal/fifo"
)

const (
	promptByte   = '>'
	pollInterval = 50 * time.Millisecond
	readChunk    = 256
)

// Driver wraps a obdcore.ByteStream as an ELM327-class adapter. One
// exchange at a time: a second caller attempting to start an exchange
// while one is already running gets obdcore.ErrBusy.
type Driver struct {
	stream obdcore.ByteStream
	mu     sync.Mutex
	buf    *fifo.Fifo
}

// New wraps stream. stream is owned exclusively by the Driver for its
// lifetime, matching the session engine's ownership of the adapter.
func New(stream obdcore.ByteStream) *Driver {
	return &Driver{stream: stream, buf: fifo.New(4096)}
}

// Reset issues ATZ, waits for the adapter banner, and drains to the
// prompt. One retry on failure before surfacing *Error{Kind: ErrReset}.
func (d *Driver) Reset(timeout time.Duration) error {
	if !d.mu.TryLock() {
		return obdcore.ErrBusy
	}
	defer d.mu.Unlock()

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		d.buf.Reset()
		if err := d.writeLine("ATZ"); err != nil {
			lastErr = err
			continue
		}
		_, err := d.readUntilPrompt(timeout)
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return &Error{Kind: ErrReset, Raw: fmt.Sprintf("reset failed after retry: %v", lastErr)}
}

// Configure applies an AT-command profile in order. Each command expects
// "OK"; an unrecognized response aborts the rest of the profile.
func (d *Driver) Configure(profile []string, perCommandTimeout time.Duration) error {
	if !d.mu.TryLock() {
		return obdcore.ErrBusy
	}
	defer d.mu.Unlock()

	for _, cmd := range profile {
		d.buf.Reset()
		if err := d.writeLine(cmd); err != nil {
			return err
		}
		resp, err := d.readUntilPrompt(perCommandTimeout)
		if err != nil {
			return fmt.Errorf("adapter: configuring %q: %w", cmd, err)
		}
		clean := clean(resp, cmd)
		if markerErr := detectError(clean); markerErr != nil {
			return markerErr
		}
		if !strings.Contains(clean, "OK") {
			return fmt.Errorf("adapter: command %q got unexpected response %q", cmd, clean)
		}
		log.WithFields(log.Fields{"command": cmd, "response": clean}).Debug("adapter: configured")
	}
	return nil
}

// Exchange sends payload (raw service bytes) hex-encoded, then reads
// until the '>' prompt or timeout. It returns the decoded response bytes
// with any adapter-prepended header bytes left in place — the caller
// (frame layer / session engine) is responsible for stripping those.
func (d *Driver) Exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	if !d.mu.TryLock() {
		return nil, obdcore.ErrBusy
	}
	defer d.mu.Unlock()

	if !d.stream.IsConnected() {
		return nil, obdcore.ErrNotConnected
	}

	d.buf.Reset()
	hexCmd := strings.ToUpper(hex.EncodeToString(payload))
	if err := d.writeLine(hexCmd); err != nil {
		return nil, err
	}

	resp, err := d.readUntilPrompt(timeout)
	if err != nil {
		return nil, err
	}

	clean := clean(resp, hexCmd)
	if markerErr := detectError(clean); markerErr != nil {
		return nil, markerErr
	}

	return parseHexResponse(clean)
}

func (d *Driver) writeLine(cmd string) error {
	_, err := d.stream.Write([]byte(cmd + "\r"))
	return err
}

// readUntilPrompt polls the stream in small chunks, accumulating into the
// fifo, until the last non-whitespace character is the prompt or the
// deadline elapses. No single read blocks longer than timeout/20, so a
// slow stream can't stall the whole exchange past its budget.
func (d *Driver) readUntilPrompt(timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)
	singleReadTimeout := timeout / 20
	if singleReadTimeout < time.Millisecond {
		singleReadTimeout = time.Millisecond
	}

	chunk := make([]byte, readChunk)
	for {
		n, err := d.stream.Read(chunk, singleReadTimeout)
		if err != nil && n == 0 {
			if time.Now().After(deadline) {
				return "", obdcore.ErrTimeout
			}
			time.Sleep(pollInterval)
			continue
		}
		if n > 0 {
			d.buf.Write(chunk[:n])
		}

		accumulated := d.buf.ReadAll()
		d.buf.Write(accumulated) // put it back; ReadAll drains
		trimmed := strings.TrimRight(string(accumulated), "\r\n \t")
		if len(trimmed) > 0 && trimmed[len(trimmed)-1] == promptByte {
			return trimmed, nil
		}

		if time.Now().After(deadline) {
			return "", obdcore.ErrTimeout
		}
		time.Sleep(pollInterval)
	}
}

// clean strips the command echo, SEARCHING markers, embedded CR/LF, and
// the trailing prompt from a raw accumulated response.
func clean(raw, echoedCmd string) string {
	s := raw
	s = strings.ReplaceAll(s, "SEARCHING...", "")
	s = strings.ReplaceAll(s, echoedCmd, "")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSuffix(strings.TrimSpace(s), string(promptByte))
	return strings.TrimSpace(s)
}

// parseHexResponse extracts hex byte pairs from a cleaned response,
// tolerating embedded spaces between bytes.
func parseHexResponse(clean string) ([]byte, error) {
	compact := strings.ReplaceAll(clean, " ", "")
	if compact == "" {
		return nil, nil
	}
	decoded, err := hex.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("adapter: response %q is not valid hex: %w", clean, err)
	}
	return decoded, nil
}
