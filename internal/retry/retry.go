package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"propvid/internal/domain"
)

const (
	defaultMaxRetries     = 3
	defaultAttemptTimeout = 30 * time.Second

	backoffBase = time.Second
	backoffCap  = 10 * time.Second
	jitterSpan  = time.Second
)

// retryableStatuses are the HTTP status codes worth another attempt.
var retryableStatuses = map[int]bool{
	408: true, 429: true, 500: true, 502: true, 503: true, 504: true,
}

// Options configures a single Do invocation. The zero value works.
type Options struct {
	// MaxRetries is the total number of attempts, not the number of retries
	// after the first failure. Defaults to 3.
	MaxRetries     int
	AttemptTimeout time.Duration
	RetryableKinds []domain.ErrorKind
	// OnRetry runs after a failed attempt that will be retried, before the
	// backoff wait. Intended for user notification.
	OnRetry func(attempt int, err error)

	// Sleep and Jitter are seams for tests; both default to real waits.
	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.AttemptTimeout <= 0 {
		o.AttemptTimeout = defaultAttemptTimeout
	}
	if o.RetryableKinds == nil {
		o.RetryableKinds = []domain.ErrorKind{domain.KindNetwork, domain.KindTimeout}
	}
	if o.Sleep == nil {
		o.Sleep = sleepCtx
	}
	if o.Jitter == nil {
		o.Jitter = func() time.Duration { return time.Duration(rand.Int63n(int64(jitterSpan))) }
	}
	return o
}

// ExhaustedError wraps the last underlying failure once every attempt has
// been spent or a non-retryable failure aborted the loop.
type ExhaustedError struct {
	MaxRetries int
	Err        error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("operation failed after %d attempts: %v", e.MaxRetries, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// UserMessage returns a human-readable summary, with a connectivity-specific
// override when the last failure was a network one.
func (e *ExhaustedError) UserMessage() string {
	if domain.KindOf(e.Err) == domain.KindNetwork {
		return "Failed to connect to video service after multiple attempts. Please try again later."
	}
	return fmt.Sprintf("Operation failed after %d attempts.", e.MaxRetries)
}

// Do runs op up to MaxRetries times, racing each attempt against
// AttemptTimeout. op receives the 1-based attempt number. Failed attempts are
// retried only for retryable failures (configured kinds, timeouts, network
// errors, or retryable HTTP statuses), waiting min(1s*2^(n-1), 10s) plus up
// to 1s of jitter between attempts.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error
	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		result, err := runAttempt(ctx, opts.AttemptTimeout, attempt, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if attempt == opts.MaxRetries || !opts.shouldRetry(err) {
			break
		}
		if opts.OnRetry != nil {
			opts.OnRetry(attempt, err)
		}
		if err := opts.Sleep(ctx, Backoff(attempt)+opts.Jitter()); err != nil {
			return zero, err
		}
	}
	return zero, &ExhaustedError{MaxRetries: opts.MaxRetries, Err: lastErr}
}

// Backoff returns the capped exponential base delay after the given attempt.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := backoffBase << uint(attempt-1)
	if d > backoffCap || d <= 0 {
		return backoffCap
	}
	return d
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, attempt int, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := op(attemptCtx, attempt)
		done <- outcome{val: val, err: err}
	}()

	select {
	case out := <-done:
		return out.val, out.err
	case <-attemptCtx.Done():
		var zero T
		// The slow attempt is abandoned, not joined; op must be safe to
		// leave running against its canceled context.
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, domain.E(domain.KindTimeout, "request timeout", attemptCtx.Err())
		}
		return zero, attemptCtx.Err()
	}
}

func (o Options) shouldRetry(err error) bool {
	kind := domain.KindOf(err)
	for _, k := range o.RetryableKinds {
		if kind == k {
			return true
		}
	}
	if kind == domain.KindTimeout || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isNetworkError(err) {
		return true
	}
	return retryableStatuses[domain.StatusOf(err)]
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range []string{"network", "connection refused", "connection reset", "no such host", "broken pipe"} {
		if strings.Contains(msg, hint) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
