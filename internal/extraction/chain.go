package extraction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"

	"schedule-backend/internal/shared/metrics"
	"schedule-backend/internal/shared/telemetry"
)

// Chain runs the primary backend when it is available and falls back to the
// secondary on error, empty result or unavailability. A missing or disabled
// secondary is never called.
type Chain struct {
	Primary   Backend
	Secondary Backend
}

// ChainError reports that every backend in the chain failed.
type ChainError struct {
	Primary   error
	Secondary error
}

func (e *ChainError) Error() string {
	switch {
	case e.Primary != nil && e.Secondary != nil:
		return fmt.Sprintf("all extraction backends failed: primary: %v; secondary: %v", e.Primary, e.Secondary)
	case e.Secondary != nil:
		return "extraction failed: " + e.Secondary.Error()
	case e.Primary != nil:
		return "extraction failed: " + e.Primary.Error()
	default:
		return "extraction failed"
	}
}

// Unwrap exposes both causes to errors.Is / errors.As.
func (e *ChainError) Unwrap() []error {
	var out []error
	if e.Primary != nil {
		out = append(out, e.Primary)
	}
	if e.Secondary != nil {
		out = append(out, e.Secondary)
	}
	return out
}

func (c Chain) Name() string { return "chain" }

// IsAvailable reports whether either backend can serve requests.
func (c Chain) IsAvailable() bool {
	return IsAvailable(c.Primary) || IsAvailable(c.Secondary)
}

// Extract runs the chain. The secondary result is accepted even when it
// carries no routes; confidence tiering decides what happens next.
func (c Chain) Extract(ctx context.Context, image []byte, mimeType string) (Result, error) {
	var primaryErr error
	reason := ""

	if c.Primary != nil && IsAvailable(c.Primary) {
		res, err := invoke(ctx, c.Primary, image, mimeType)
		switch {
		case err == nil && !res.Payload.IsEmpty():
			return res, nil
		case err == nil:
			primaryErr = eris.Wrapf(ErrEmptyResult, "%s", c.Primary.Name())
			reason = "empty"
		default:
			primaryErr = err
			reason = "error"
		}
	} else {
		primaryErr = ErrUnavailable
		reason = "unavailable"
	}

	if !IsAvailable(c.Secondary) {
		return Result{}, &ChainError{Primary: primaryErr, Secondary: ErrUnavailable}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, &ChainError{Primary: primaryErr, Secondary: err}
	}

	metrics.IncFallback(reason)
	fields := map[string]any{
		"reason":    reason,
		"secondary": c.Secondary.Name(),
	}
	if c.Primary != nil {
		fields["primary"] = c.Primary.Name()
	}
	if primaryErr != nil && !errors.Is(primaryErr, ErrUnavailable) {
		fields["error"] = primaryErr.Error()
	}
	telemetry.Info("extraction.fallback", fields)

	res, err := invoke(ctx, c.Secondary, image, mimeType)
	if err != nil {
		return Result{}, &ChainError{Primary: primaryErr, Secondary: err}
	}
	return res, nil
}

func invoke(ctx context.Context, b Backend, image []byte, mimeType string) (res Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("%s: panic: %v", b.Name(), r)
		}
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case res.Payload.IsEmpty():
			outcome = "empty"
		}
		metrics.IncExtraction(b.Name(), outcome)
	}()

	res, err = b.Extract(ctx, image, mimeType)
	if err != nil {
		return Result{}, eris.Wrapf(err, "%s", b.Name())
	}
	if res.Backend == "" {
		res.Backend = b.Name()
	}
	res.Confidence = ClampConfidence(res.Confidence)
	if res.Duration == 0 {
		res.Duration = time.Since(start)
	}
	return res, nil
}
