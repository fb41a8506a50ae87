// Package retry wraps cenkalti/backoff with a small policy object so any
// remote call can be retried with the same bounded exponential schedule.
package retry

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy is a bounded exponential backoff: MaxAttempts calls in total, the
// first wait is BaseDelay and each following wait is Multiplier times the
// previous one. There is no jitter.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64

	// Timer replaces the wall clock wait. Nil means real time.
	Timer backoff.Timer
}

// Default is 5 attempts waiting 2s, 4s, 8s and 16s between them.
func Default() Policy {
	return Policy{MaxAttempts: 5, BaseDelay: 2 * time.Second, Multiplier: 2}
}

// Notify is called before each wait with the attempt that just failed.
type Notify func(attempt int, err error, wait time.Duration)

// Do runs op until it succeeds, returns a non-transient error, or the
// attempts are exhausted. The last error is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, notify Notify) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.Multiplier = multiplier
	eb.RandomizationFactor = 0
	eb.MaxInterval = maxInterval(p.BaseDelay, multiplier, attempts)
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)

	attempt := 0
	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	var n backoff.Notify
	if notify != nil {
		n = func(err error, wait time.Duration) { notify(attempt, err, wait) }
	}
	return backoff.RetryNotifyWithTimer(operation, b, n, p.Timer)
}

// maxInterval caps the schedule at its own last step so the multiplier is
// never clipped by backoff's default 60s ceiling.
func maxInterval(base time.Duration, multiplier float64, attempts int) time.Duration {
	d := float64(base)
	for i := 1; i < attempts-1; i++ {
		d *= multiplier
	}
	if d < float64(base) || d > float64(24*time.Hour) {
		return 24 * time.Hour
	}
	return time.Duration(d)
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient flags err as worth retrying. Nil stays nil.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked transient or is a timeout.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
