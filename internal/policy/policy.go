// Package policy holds the pure decision logic of the queue: mapping
// handler errors to a classification and computing retry backoff. No I/O
// happens here, so it is testable without a store or worker.
package policy

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/Pumpdnz/restaurant-menu-automation-sub003/internal/model"
)

// Error is a classified handler error. Handlers wrap their failures so
// the worker never has to guess from message text.
type Error struct {
	Kind  model.ErrorKind
	Retry bool
	Err   error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal wraps err as a non-retryable failure of the given kind.
func Fatal(kind model.ErrorKind, err error) error {
	return &Error{Kind: kind, Retry: false, Err: err}
}

// Retryable wraps err as a retryable failure of the given kind.
func Retryable(kind model.ErrorKind, err error) error {
	return &Error{Kind: kind, Retry: true, Err: err}
}

// Classify maps an arbitrary handler error to its kind and disposition.
// Unknown errors default to retryable: retrying a few times is safer than
// silently dropping work, and max_retries bounds the damage.
func Classify(err error) (model.ErrorKind, bool) {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind, cerr.Retry
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return model.KindTimeout, true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		if nerr.Timeout() {
			return model.KindTimeout, true
		}
		return model.KindNetwork, true
	}
	return model.KindUnknown, true
}

// Backoff computes retry delay: exponential with jitter, capped.
type Backoff struct {
	Base          time.Duration
	Multiplier    float64
	Max           time.Duration
	JitterPercent int

	// Rand supplies jitter; nil disables it, which keeps Delay
	// deterministic for tests.
	Rand *rand.Rand
}

// rateLimitFactor widens the delay when the upstream throttled us; the
// next attempt has to outlast the throttle window, not just our own base.
const rateLimitFactor = 4

// Delay returns the not-before delay for the given attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	return b.delay(attempt, b.Base)
}

// DelayFor is Delay with the error kind taken into account.
func (b Backoff) DelayFor(kind model.ErrorKind, attempt int) time.Duration {
	base := b.Base
	if kind == model.KindRateLimit {
		base *= rateLimitFactor
	}
	return b.delay(attempt, base)
}

func (b Backoff) delay(attempt int, base time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := b.Multiplier
	if mult <= 0 {
		mult = 2
	}

	d := time.Duration(float64(base) * math.Pow(mult, float64(attempt-1)))
	// d < 0 means the exponent overflowed.
	if b.Max > 0 && (d > b.Max || d < 0) {
		d = b.Max
	}
	if b.Rand != nil && b.JitterPercent > 0 {
		span := float64(d) * float64(b.JitterPercent) / 100
		d += time.Duration((b.Rand.Float64()*2 - 1) * span)
	}
	if d < 0 {
		d = 0
	}
	return d
}
