package detect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obdcore.dev/pkg/protocoltype"
)

// scriptedProber tracks which protocol is being probed via the profile's
// ATSPn suffix so Exchange can answer only for the target protocol.
type scriptedProber struct {
	target  protocoltype.Type
	lastATP string
}

func (p *scriptedProber) Configure(profile []string, timeout time.Duration) error {
	if len(profile) > 0 {
		p.lastATP = profile[len(profile)-1]
	}
	return nil
}

func (p *scriptedProber) Exchange(payload []byte, timeout time.Duration) ([]byte, error) {
	row, _ := protocoltype.Lookup(p.target)
	targetProfile := row.ATProfile
	if p.lastATP == targetProfile[len(targetProfile)-1] {
		return []byte{0x41, 0x00, 0xBE, 0x3F, 0xA8, 0x13}, nil
	}
	return nil, assertNoData{}
}

type assertNoData struct{}

func (assertNoData) Error() string { return "no data" }

func TestDetectPicksCAN11Bit500KForDefaultHints(t *testing.T) {
	prober := &scriptedProber{target: protocoltype.ISO157654CAN11Bit500K}
	d := New(prober)

	var events []Progress
	result := d.Detect(Hints{}, Options{TestTimeout: 50 * time.Millisecond, TotalTimeout: time.Second}, func(p Progress) {
		events = append(events, p)
	})

	require.True(t, result.Detected)
	assert.Equal(t, protocoltype.ISO157654CAN11Bit500K, result.Protocol)
	assert.Equal(t, []protocoltype.Type{protocoltype.ISO157654CAN11Bit500K}, result.TestedSet)

	require.NotEmpty(t, events)
	assert.Equal(t, EventStarted, events[0].Kind)
	assert.Equal(t, EventDetected, events[len(events)-1].Kind)
}

func TestDetectFallsThroughToLaterCandidateWhenEarlierOnesFail(t *testing.T) {
	prober := &scriptedProber{target: protocoltype.ISO142304KWPFast}
	d := New(prober)

	result := d.Detect(Hints{}, Options{TestTimeout: 20 * time.Millisecond, TotalTimeout: time.Second, RetriesPerProtocol: 1}, nil)

	require.True(t, result.Detected)
	assert.Equal(t, protocoltype.ISO142304KWPFast, result.Protocol)
	assert.True(t, len(result.TestedSet) > 1, "should have tried CAN candidates first")
	assert.Equal(t, result.TestedSet[len(result.TestedSet)-1], protocoltype.ISO142304KWPFast)
}

func TestDetectReturnsFailureWhenNothingResponds(t *testing.T) {
	prober := &scriptedProber{target: protocoltype.J1939} // not in default order unless EnableJ1939
	d := New(prober)

	result := d.Detect(Hints{}, Options{TestTimeout: 5 * time.Millisecond, TotalTimeout: 2 * time.Second, RetriesPerProtocol: 1}, nil)

	assert.False(t, result.Detected)
	assert.Equal(t, FailureNoCandidateResponded, result.Reason)
	assert.Len(t, result.TestedSet, len(defaultOrder()))
}

func TestDetectHonorsCancel(t *testing.T) {
	prober := &scriptedProber{target: protocoltype.J1939}
	d := New(prober)
	d.Cancel()

	result := d.Detect(Hints{}, Options{TestTimeout: 5 * time.Millisecond, TotalTimeout: time.Second}, nil)

	assert.False(t, result.Detected)
	assert.Equal(t, FailureCancelled, result.Reason)
}

func TestDetectIsDeterministicForFixedHints(t *testing.T) {
	hints := Hints{ModelYear: 2015, Make: "Toyota"}
	prober := &scriptedProber{target: protocoltype.ISO157654CAN29Bit500K}

	var first, second []protocoltype.Type
	d1 := New(prober)
	r1 := d1.Detect(hints, Options{TestTimeout: 5 * time.Millisecond, TotalTimeout: time.Second}, func(p Progress) {
		if p.Kind == EventTesting {
			first = append(first, p.Protocol)
		}
	})
	d2 := New(prober)
	r2 := d2.Detect(hints, Options{TestTimeout: 5 * time.Millisecond, TotalTimeout: time.Second}, func(p Progress) {
		if p.Kind == EventTesting {
			second = append(second, p.Protocol)
		}
	})

	assert.Equal(t, first, second)
	assert.Equal(t, r1.Protocol, r2.Protocol)
	assert.Equal(t, r1.Detected, r2.Detected)
}

func TestISO91412IsFlaggedForFiveBaudInit(t *testing.T) {
	row, err := protocoltype.Lookup(protocoltype.ISO91412)
	require.NoError(t, err)
	assert.True(t, row.Requires5Baud)
}
