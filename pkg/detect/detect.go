// Package detect implements protocol auto-detection: trying candidate bus
// protocols in a prioritized order until one returns a validated positive
// response to the canonical probe.
package detect

import (
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"obdcore.dev/pkg/protocoltype"
)

// Prober is what the detector needs from the adapter driver: apply a
// configuration profile, then exchange a probe request for a response.
// obdcore's adapter.Driver satisfies this structurally.
type Prober interface {
	Configure(profile []string, timeout time.Duration) error
	Exchange(payload []byte, timeout time.Duration) ([]byte, error)
}

// EventKind tags one entry on the detection progress stream.
type EventKind int

const (
	EventStarted EventKind = iota
	EventTesting
	EventTestedProtocol
	EventDetected
	EventFailed
	EventCancelled
)

// FailureReason distinguishes why a run ended without a detected protocol.
type FailureReason int

const (
	FailureNone FailureReason = iota
	FailureNoCandidateResponded
	FailureTimeout
	FailureCancelled
)

// Progress is one entry on the detection progress stream.
type Progress struct {
	Kind      EventKind
	Protocol  protocoltype.Type
	Index     int
	Total     int
	Fraction  float64
	Success   bool
	ElapsedMs int64
	Reason    FailureReason
	TestedSet []protocoltype.Type
}

// Options bounds one detection run.
type Options struct {
	TestTimeout      time.Duration // default 3s, doubled for 5-baud-init protocols
	RetriesPerProtocol int         // default 1 (one attempt, no retry)
	RetryDelay       time.Duration
	TotalTimeout     time.Duration // default 30s
}

func (o Options) withDefaults() Options {
	if o.TestTimeout <= 0 {
		o.TestTimeout = 3 * time.Second
	}
	if o.RetriesPerProtocol <= 0 {
		o.RetriesPerProtocol = 1
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 200 * time.Millisecond
	}
	if o.TotalTimeout <= 0 {
		o.TotalTimeout = 30 * time.Second
	}
	return o
}

// Detector tries candidates against a Prober until one validates.
type Detector struct {
	prober    Prober
	cancelled atomic.Bool
}

func New(prober Prober) *Detector {
	return &Detector{prober: prober}
}

// Cancel cooperatively stops an in-flight Detect call before its next
// candidate or retry check. A Cancel made while no Detect is running
// applies to the next Detect call; Detect clears the flag when it returns.
func (d *Detector) Cancel() { d.cancelled.Store(true) }

// Result is the outcome of a completed Detect call.
type Result struct {
	Protocol  protocoltype.Type
	Detected  bool
	Reason    FailureReason
	TestedSet []protocoltype.Type
	ElapsedMs int64
}

// Detect runs the candidate sweep built from hints, invoking onProgress
// for each event (onProgress may be nil). It returns as soon as the first
// candidate validates, or once every candidate has been exhausted, the
// total deadline elapses, or the caller calls Cancel.
func (d *Detector) Detect(hints Hints, opts Options, onProgress func(Progress)) Result {
	opts = opts.withDefaults()
	defer d.cancelled.Store(false)
	emit := func(p Progress) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	order := BuildCandidateOrder(hints)
	start := time.Now()
	deadline := start.Add(opts.TotalTimeout)

	emit(Progress{Kind: EventStarted, Total: len(order)})

	tested := make([]protocoltype.Type, 0, len(order))

	for i, candidate := range order {
		if d.cancelled.Load() {
			emit(Progress{Kind: EventCancelled, TestedSet: tested})
			return Result{Reason: FailureCancelled, TestedSet: tested, ElapsedMs: time.Since(start).Milliseconds()}
		}
		if time.Now().After(deadline) {
			emit(Progress{Kind: EventFailed, Reason: FailureTimeout, TestedSet: tested})
			return Result{Reason: FailureTimeout, TestedSet: tested, ElapsedMs: time.Since(start).Milliseconds()}
		}

		emit(Progress{
			Kind: EventTesting, Protocol: candidate, Index: i, Total: len(order),
			Fraction: float64(i) / float64(len(order)),
		})

		tested = append(tested, candidate)
		success, elapsed := d.tryCandidate(candidate, opts)

		emit(Progress{Kind: EventTestedProtocol, Protocol: candidate, Success: success, ElapsedMs: elapsed.Milliseconds()})

		if success {
			emit(Progress{Kind: EventDetected, Protocol: candidate, ElapsedMs: time.Since(start).Milliseconds()})
			return Result{Protocol: candidate, Detected: true, TestedSet: tested, ElapsedMs: time.Since(start).Milliseconds()}
		}
	}

	emit(Progress{Kind: EventFailed, Reason: FailureNoCandidateResponded, TestedSet: tested})
	return Result{Reason: FailureNoCandidateResponded, TestedSet: tested, ElapsedMs: time.Since(start).Milliseconds()}
}

// tryCandidate runs the per-candidate procedure: configure, probe,
// classify, retry up to RetriesPerProtocol times.
func (d *Detector) tryCandidate(candidate protocoltype.Type, opts Options) (bool, time.Duration) {
	row, err := protocoltype.Lookup(candidate)
	if err != nil {
		log.WithError(err).Warn("detect: unknown candidate protocol")
		return false, 0
	}

	testTimeout := opts.TestTimeout
	if row.Requires5Baud {
		testTimeout *= 2
	}

	start := time.Now()
	for attempt := 0; attempt < opts.RetriesPerProtocol; attempt++ {
		if d.cancelled.Load() {
			return false, time.Since(start)
		}
		if err := d.prober.Configure(row.ATProfile, testTimeout); err != nil {
			log.WithError(err).Debugf("detect: configuring %s failed", row.DisplayName)
			if attempt+1 < opts.RetriesPerProtocol {
				time.Sleep(opts.RetryDelay)
			}
			continue
		}

		resp, err := d.prober.Exchange(row.ProbeRequest, testTimeout)
		if err == nil && row.Validate(resp) {
			return true, time.Since(start)
		}
		if attempt+1 < opts.RetriesPerProtocol {
			time.Sleep(opts.RetryDelay)
		}
	}
	return false, time.Since(start)
}
