package debounce_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthconnect/feed-engine/pkg/debounce"
)

func TestTriggerCoalescesBursts(t *testing.T) {
	d := debounce.New(30 * time.Millisecond)
	var fired atomic.Int32

	for i := 0; i < 5; i++ {
		d.Trigger(func() { fired.Add(1) })
		time.Sleep(5 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return fired.Load() == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestStopCancelsPending(t *testing.T) {
	d := debounce.New(30 * time.Millisecond)
	var fired atomic.Int32

	d.Trigger(func() { fired.Add(1) })
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}

func TestTriggerAfterStopIsNoOp(t *testing.T) {
	d := debounce.New(10 * time.Millisecond)
	var fired atomic.Int32

	d.Stop()
	d.Trigger(func() { fired.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())
}
