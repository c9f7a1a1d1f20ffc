package isotp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendSegmentedSingleFrameSkipsFlowControl(t *testing.T) {
	var sent [][]byte
	err := SendSegmented([]byte{0x01, 0x0C}, func(f []byte) error {
		sent = append(sent, f)
		return nil
	}, func(time.Duration) (Frame, error) {
		t.Fatal("should not await flow control for a single frame send")
		return Frame{}, nil
	}, time.Second)

	require.NoError(t, err)
	require.Len(t, sent, 1)
}

func TestSendSegmentedHonorsContinueAndBlockSize(t *testing.T) {
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}

	var sent [][]byte
	fcCalls := 0
	err := SendSegmented(payload, func(f []byte) error {
		sent = append(sent, f)
		return nil
	}, func(time.Duration) (Frame, error) {
		fcCalls++
		return Frame{Kind: KindFlowControl, Status: FlowContinue, BlockSize: 0, SeparationTime: 0}, nil
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 1, fcCalls)
	// 1 FF + 3 CFs (6 + 7 + 7 = 20)
	require.Len(t, sent, 4)
}

func TestSendSegmentedAbortsOnOverflow(t *testing.T) {
	payload := make([]byte, 20)
	err := SendSegmented(payload, func(f []byte) error { return nil }, func(time.Duration) (Frame, error) {
		return Frame{Kind: KindFlowControl, Status: FlowOverflow}, nil
	}, time.Second)

	var overflowErr *OverflowError
	assert.ErrorAs(t, err, &overflowErr)
}

func TestSendSegmentedRetriesOnWait(t *testing.T) {
	payload := make([]byte, 20)
	calls := 0
	err := SendSegmented(payload, func(f []byte) error { return nil }, func(time.Duration) (Frame, error) {
		calls++
		if calls < 3 {
			return Frame{Kind: KindFlowControl, Status: FlowWait}, nil
		}
		return Frame{Kind: KindFlowControl, Status: FlowContinue}, nil
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestSendSegmentedTimesOutWaitingForFlowControl(t *testing.T) {
	payload := make([]byte, 20)
	err := SendSegmented(payload, func(f []byte) error { return nil }, func(time.Duration) (Frame, error) {
		return Frame{}, assertErr
	}, time.Millisecond)

	var timeoutErr *TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "N_Bs", timeoutErr.Stage)
}

var assertErr = &TimeoutError{Stage: "N_Bs"}
