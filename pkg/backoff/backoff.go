// Package backoff retries fallible network operations with exponential delay.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Policy controls how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of invocations, including the first. Values below 1 mean 1.
	MaxAttempts  int
	InitialDelay time.Duration
	Multiplier   float64
	// MaxDelay caps a single wait. Zero means no cap.
	MaxDelay time.Duration
	// IsRetryable decides whether a failed attempt may be retried. Nil means IsRetryable.
	IsRetryable func(error) bool
	// OnAttempt is called after every failed attempt. It cannot change the outcome.
	OnAttempt func(attempt int, err error)
}

// DefaultPolicy mirrors the settings used for every upstream call unless configured otherwise.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		Multiplier:   2,
		IsRetryable:  IsRetryable,
	}
}

// WithObserver returns a copy of p that reports failed attempts to fn.
func (p Policy) WithObserver(fn func(attempt int, err error)) Policy {
	p.OnAttempt = fn
	return p
}

// sleep is replaced in tests.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or attempts run out.
// The returned error is the one produced by the last attempt.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry is Do for operations that produce a value.
func Retry[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	retryable := p.IsRetryable
	if retryable == nil {
		retryable = IsRetryable
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	delay := p.InitialDelay
	var zero T
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		p.notify(attempt, err)

		if attempt >= maxAttempts || !retryable(err) {
			return zero, err
		}

		if serr := sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("retry aborted after attempt %d: %w", attempt, errors.Join(err, serr))
		}
		delay = time.Duration(float64(delay) * multiplier)
		if p.MaxDelay > 0 && delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}
}

func (p Policy) notify(attempt int, err error) {
	if p.OnAttempt == nil {
		return
	}
	defer func() { _ = recover() }()
	p.OnAttempt(attempt, err)
}

// StatusCoder is implemented by errors that carry an upstream HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// IsRetryable reports whether err looks transient: timeouts, connection and DNS
// failures, and HTTP 408, 429 or 5xx. Any other HTTP status is terminal.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		return RetryableStatus(sc.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// RetryableStatus reports whether an HTTP status code is worth retrying.
func RetryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= http.StatusInternalServerError
}
