package extraction

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"schedule-backend/internal/shared/telemetry"
)

// TransientError marks a backend failure worth retrying (rate limits,
// upstream 5xx, timeouts).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is worth another attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *TransientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout")
}

// GuardOptions configures Guard.
type GuardOptions struct {
	// Attempts is the total number of calls including the first. Default 1.
	Attempts       int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Timeout bounds each call. Zero means no per-call timeout.
	Timeout time.Duration
	// Limiter throttles calls to the backend when set.
	Limiter *rate.Limiter
}

// Guard wraps b with a per-call timeout, an optional rate limiter and retry
// with jittered exponential backoff on transient errors. Availability of the
// wrapped backend is preserved.
func Guard(b Backend, opts GuardOptions) Backend {
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	return &guarded{base: b, opts: opts}
}

type guarded struct {
	base Backend
	opts GuardOptions
}

func (g *guarded) Name() string { return g.base.Name() }

func (g *guarded) IsAvailable() bool { return IsAvailable(g.base) }

func (g *guarded) Extract(ctx context.Context, image []byte, mimeType string) (Result, error) {
	var lastErr error
	for attempt := 0; attempt < g.opts.Attempts; attempt++ {
		if g.opts.Limiter != nil {
			if err := g.opts.Limiter.Wait(ctx); err != nil {
				return Result{}, eris.Wrap(err, "rate limiter")
			}
		}

		res, err := g.call(ctx, image, mimeType)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if ctx.Err() != nil || !IsTransient(err) || attempt == g.opts.Attempts-1 {
			break
		}

		delay := backoff(g.opts.InitialBackoff, g.opts.MaxBackoff, attempt)
		telemetry.Warn("extraction.retry", map[string]any{
			"backend":  g.base.Name(),
			"attempt":  attempt + 1,
			"delay_ms": delay.Milliseconds(),
			"error":    err.Error(),
		})
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return Result{}, eris.Wrap(ctx.Err(), "retry wait")
		}
	}
	return Result{}, lastErr
}

func (g *guarded) call(ctx context.Context, image []byte, mimeType string) (Result, error) {
	if g.opts.Timeout <= 0 {
		return g.base.Extract(ctx, image, mimeType)
	}
	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()
	return g.base.Extract(callCtx, image, mimeType)
}

func backoff(initial, maxDelay time.Duration, attempt int) time.Duration {
	d := float64(initial) * math.Pow(2, float64(attempt))
	if d > float64(maxDelay) {
		d = float64(maxDelay)
	}
	jitter := d * 0.25 * (rand.Float64()*2 - 1)
	return time.Duration(d + jitter)
}
