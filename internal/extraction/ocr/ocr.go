// Package ocr is the pattern-based fallback extractor: Tesseract text
// recognition followed by board-layout heuristics.
package ocr

import (
	"context"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/shared/telemetry"
)

// Name identifies this backend in results, logs and metrics.
const Name = "ocr"

// recognizer is the part of a Tesseract client the backend uses.
type recognizer interface {
	SetImageFromBytes(data []byte) error
	SetLanguage(langs ...string) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// Options configures the backend.
type Options struct {
	Languages []string
	Enabled   bool
}

// Backend implements extraction.Backend on top of gosseract.
type Backend struct {
	clientFactory func() recognizer
	languages     []string
	enabled       bool
}

// New returns a Tesseract-backed extractor.
func New(opts Options) *Backend {
	langs := opts.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Backend{
		clientFactory: func() recognizer { return gosseract.NewClient() },
		languages:     langs,
		enabled:       opts.Enabled,
	}
}

func (b *Backend) Name() string { return Name }

func (b *Backend) IsAvailable() bool { return b.enabled }

// Extract recognizes text, derives route bundles from it and scores the
// result with TextConfidence. Recognition failures are errors; text with no
// recognizable routes is an empty, low-confidence result.
func (b *Backend) Extract(ctx context.Context, image []byte, mimeType string) (extraction.Result, error) {
	if !b.enabled {
		return extraction.Result{}, extraction.ErrUnavailable
	}
	if err := extraction.ValidateImage(mimeType, int64(len(image))); err != nil {
		return extraction.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return extraction.Result{}, err
	}
	start := time.Now()

	text, wordConfidence, err := b.recognize(image)
	if err != nil {
		return extraction.Result{}, err
	}
	if err := ctx.Err(); err != nil {
		return extraction.Result{}, err
	}

	hint, _ := extraction.HintFromContext(ctx)
	parsed := ParseText(text, hint)
	confidence := TextConfidence(text, parsed)

	telemetry.Info("ocr.extracted", map[string]any{
		"chars":           len(text),
		"bundles":         len(parsed.Bundles),
		"origin":          parsed.Origin,
		"confidence":      confidence,
		"word_confidence": wordConfidence,
	})

	return extraction.Result{
		Backend:    Name,
		Payload:    extraction.FromBundles(parsed.Origin, parsed.Bundles),
		RawText:    text,
		Confidence: confidence,
		Duration:   time.Since(start),
	}, nil
}

func (b *Backend) recognize(image []byte) (string, float64, error) {
	c := b.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(image); err != nil {
		return "", 0, eris.Wrap(err, "set image")
	}
	if err := c.SetLanguage(b.languages...); err != nil {
		return "", 0, eris.Wrap(err, "set languages")
	}
	text, err := c.Text()
	if err != nil {
		return "", 0, eris.Wrap(err, "recognize text")
	}
	return strings.TrimSpace(text), meanWordConfidence(c), nil
}

func meanWordConfidence(c recognizer) float64 {
	boxes, err := c.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil || len(boxes) == 0 {
		return 0
	}
	var sum float64
	for _, box := range boxes {
		sum += box.Confidence / 100.0
	}
	return sum / float64(len(boxes))
}
