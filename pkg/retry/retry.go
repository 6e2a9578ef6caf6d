// Package retry wraps exponential backoff around any operation whose
// failures are worth reclassifying before a retry is attempted: transport
// errors are retried, protocol errors and cancellation are not.
package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nanoncore/switchfleet/pkg/transport"
)

// Policy configures a retry.Run invocation. Field names mirror the
// teacher's hand-rolled ResilientPusherConfig (InitialBackoff/MaxBackoff/
// Multiplier) so the shape is familiar even though the implementation now
// delegates to backoff/v4 instead of a hand-rolled loop.
type Policy struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	MaxElapsedTime time.Duration
	MaxAttempts    uint64 // 0 means unbounded (bounded only by MaxElapsedTime/ctx)
	Logger         *slog.Logger
}

// DefaultPolicy mirrors the command-execution retry discipline: 1s
// initial, 10s cap, up to 3 attempts.
func DefaultPolicy() Policy {
	return Policy{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
		MaxElapsedTime: 0,
		MaxAttempts:    3,
	}
}

// ConnectPolicy mirrors the connect-phase retry discipline: same backoff
// curve as DefaultPolicy, but up to 5 attempts.
func ConnectPolicy() Policy {
	p := DefaultPolicy()
	p.MaxAttempts = 5
	return p
}

// Run executes op, retrying only when the returned error classifies as
// transport-transient. A protocol error or context cancellation is
// returned immediately without consuming a retry attempt.
func (p Policy) Run(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = orDefault(p.InitialBackoff, 1*time.Second)
	bo.MaxInterval = orDefault(p.MaxBackoff, 10*time.Second)
	if p.Multiplier > 0 {
		bo.Multiplier = p.Multiplier
	}
	bo.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = bo
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	withCtx := backoff.WithContext(b, ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		switch transport.Classify(err) {
		case transport.ClassTransient:
			return err
		default:
			return backoff.Permanent(err)
		}
	}, withCtx, func(err error, wait time.Duration) {
		if p.Logger != nil {
			p.Logger.Warn("retrying after transient failure",
				slog.Int("attempt", attempt),
				slog.Duration("wait", wait),
				slog.Any("cause", err))
		}
	})
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
