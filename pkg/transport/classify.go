// Package transport implements the per-protocol line-oriented I/O adapters
// that device drivers sit on top of: prompt-driven telnet (Brocade),
// interactive SSH shell (Zyxel CLI), exec-per-command SSH+SCP
// (OpenWrt/ONTI), and authenticated web-form sessions (Zyxel legacy web).
package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
)

// FailureClass distinguishes retryable transport failures from
// protocol-level failures the device itself reported.
type FailureClass int

const (
	// ClassProtocol is a device-reported error (e.g. "Invalid input");
	// never retried at the transport layer.
	ClassProtocol FailureClass = iota
	// ClassTransient is a connection-reset/timeout/EOF/socket error;
	// eligible for retry per the exponential backoff policy.
	ClassTransient
	// ClassCancelled is a context cancellation; never retried, never
	// triggers rollback.
	ClassCancelled
)

// Classify inspects a transport-level error and reports whether it is
// retryable. Protocol-level errors (explicit "Invalid" strings from the
// device) are surfaced as a successful send with failure content and never
// reach this classifier — Classify only sees genuine transport errors.
func Classify(err error) FailureClass {
	if err == nil {
		return ClassProtocol
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ClassCancelled
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ClassTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ClassTransient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ClassTransient
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection reset", "broken pipe", "connection refused", "timeout", "timed out", "eof", "i/o timeout"} {
		if strings.Contains(msg, s) {
			return ClassTransient
		}
	}
	return ClassProtocol
}

// IsRetryable is a convenience wrapper around Classify.
func IsRetryable(err error) bool {
	return Classify(err) == ClassTransient
}
