// Package fleet dispatches one logical task per device across a group
// and waits for every result, bounding how many devices are contacted at
// once. Grounded on the teacher's pkg/agent/poller worker-pool pattern
// (bounded concurrent dispatch over a set of equipment), adapted from a
// continuous ticker-scheduled poll loop to an on-demand fan-out over a
// caller-supplied device list, using errgroup in place of the teacher's
// hand-rolled job-channel/WaitGroup plumbing.
package fleet

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds how many devices are contacted at once when
// a caller does not set Concurrency explicitly.
const DefaultConcurrency = 8

// Task is the work performed against a single device during a fan-out.
type Task func(ctx context.Context, deviceID string) error

// Result is one device's outcome from a fan-out.
type Result struct {
	DeviceID string
	Err      error
}

// Run dispatches task against every id in deviceIDs concurrently, bounded
// by concurrency (DefaultConcurrency when <= 0), and returns one Result
// per device once every task has finished. Run itself never returns an
// error: a per-device failure is reported in that device's Result so one
// unreachable switch never prevents the rest of the fleet from being
// contacted.
func Run(ctx context.Context, deviceIDs []string, concurrency int, task Task) []Result {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	results := make([]Result, len(deviceIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, id := range deviceIDs {
		i, id := i, id
		g.Go(func() error {
			results[i] = Result{DeviceID: id, Err: task(gctx, id)}
			return nil
		})
	}
	_ = g.Wait() // task errors are captured per-result, never surfaced here

	return results
}

// Failures returns the subset of results with a non-nil error, in the
// order they appear in results.
func Failures(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}
