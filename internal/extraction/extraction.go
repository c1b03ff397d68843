// Package extraction defines the contract shared by schedule extraction
// backends and the fallback chain the orchestrator drives.
package extraction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// DefaultConfidence is used when a backend does not report one.
const DefaultConfidence = 0.85

var (
	// ErrEmptyResult marks a backend call that succeeded but found no routes.
	ErrEmptyResult = eris.New("extraction returned no routes")
	// ErrUnavailable marks a backend that is not configured.
	ErrUnavailable = eris.New("extraction backend unavailable")
	// ErrInvalidImage marks input the backend refuses to process.
	ErrInvalidImage = eris.New("image is not a valid schedule image")
)

// Backend turns a schedule image into a provisional structured payload.
type Backend interface {
	Name() string
	Extract(ctx context.Context, image []byte, mimeType string) (Result, error)
}

// Availability is implemented by backends that can be switched off at runtime.
type Availability interface {
	IsAvailable() bool
}

// Result is the output of one successful extraction.
type Result struct {
	Backend    string
	Payload    Payload
	Raw        json.RawMessage
	RawText    string
	Confidence float64
	Duration   time.Duration
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

type hintKey struct{}

// WithHint attaches submitter-provided context (origin, route name,
// description) for backends that can use it.
func WithHint(ctx context.Context, hint string) context.Context {
	return context.WithValue(ctx, hintKey{}, hint)
}

// HintFromContext returns the hint attached by WithHint, if any.
func HintFromContext(ctx context.Context) (string, bool) {
	hint, ok := ctx.Value(hintKey{}).(string)
	return hint, ok && hint != ""
}

// IsAvailable reports whether b can currently serve requests. Backends that
// do not implement Availability are always available.
func IsAvailable(b Backend) bool {
	if b == nil {
		return false
	}
	if a, ok := b.(Availability); ok {
		return a.IsAvailable()
	}
	return true
}
