package fleet

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CollectsOneResultPerDevice(t *testing.T) {
	ids := []string{"sw-1", "sw-2", "sw-3"}

	results := Run(context.Background(), ids, 0, func(ctx context.Context, deviceID string) error {
		if deviceID == "sw-2" {
			return errors.New("unreachable")
		}
		return nil
	})

	require.Len(t, results, 3)
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.DeviceID] = r
	}

	assert.NoError(t, byID["sw-1"].Err)
	assert.Error(t, byID["sw-2"].Err)
	assert.NoError(t, byID["sw-3"].Err)
}

func TestRun_OneFailureDoesNotAbortTheRest(t *testing.T) {
	ids := []string{"sw-1", "sw-2"}

	results := Run(context.Background(), ids, 2, func(ctx context.Context, deviceID string) error {
		return errors.New("boom")
	})

	for _, r := range results {
		assert.Error(t, r.Err)
	}
	assert.Len(t, Failures(results), 2)
}

func TestRun_RespectsConcurrencyLimit(t *testing.T) {
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = "device"
	}

	var inFlight, maxSeen int64
	Run(context.Background(), ids, 3, func(ctx context.Context, deviceID string) error {
		n := atomic.AddInt64(&inFlight, 1)
		for {
			cur := atomic.LoadInt64(&maxSeen)
			if n <= cur || atomic.CompareAndSwapInt64(&maxSeen, cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)
		return nil
	})

	assert.LessOrEqual(t, atomic.LoadInt64(&maxSeen), int64(3))
}

func TestFailures_EmptyWhenAllSucceed(t *testing.T) {
	results := Run(context.Background(), []string{"sw-1"}, 1, func(ctx context.Context, deviceID string) error {
		return nil
	})
	assert.Empty(t, Failures(results))
}
