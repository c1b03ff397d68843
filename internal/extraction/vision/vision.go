// Package vision extracts schedules from board photos with the Anthropic
// Messages API.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/shared/telemetry"
)

// Name identifies this backend in results, logs and metrics.
const Name = "vision"

const defaultModel = "claude-sonnet-4-5-20250929"

// request is the subset of a Messages call this backend makes.
type request struct {
	Model     string
	MaxTokens int64
	MimeType  string
	Image     []byte // nil for text-only follow-ups
	Prompt    string
}

type response struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// completer sends one request to the model.
type completer interface {
	Complete(ctx context.Context, req request) (response, error)
}

// Options configures the backend.
type Options struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// Backend implements extraction.Backend.
type Backend struct {
	client    completer
	model     string
	maxTokens int64
}

// New returns a backend. Without an API key it reports itself unavailable.
func New(opts Options) *Backend {
	b := &Backend{model: opts.Model, maxTokens: opts.MaxTokens}
	if strings.TrimSpace(b.model) == "" {
		b.model = defaultModel
	}
	if b.maxTokens <= 0 {
		b.maxTokens = 4096
	}
	if strings.TrimSpace(opts.APIKey) != "" {
		b.client = &sdkCompleter{client: sdk.NewClient(option.WithAPIKey(opts.APIKey))}
	}
	return b
}

func newWithCompleter(c completer, model string) *Backend {
	return &Backend{client: c, model: model, maxTokens: 4096}
}

func (b *Backend) Name() string { return Name }

// IsAvailable reports whether an API key was configured.
func (b *Backend) IsAvailable() bool { return b != nil && b.client != nil }

// Extract sends the image to the model and decodes its JSON answer. One
// follow-up request is made when the first answer is not valid JSON.
func (b *Backend) Extract(ctx context.Context, image []byte, mimeType string) (extraction.Result, error) {
	if !b.IsAvailable() {
		return extraction.Result{}, extraction.ErrUnavailable
	}
	if len(image) == 0 {
		return extraction.Result{}, eris.Wrap(extraction.ErrInvalidImage, "empty image")
	}
	start := time.Now()
	hint, _ := extraction.HintFromContext(ctx)

	resp, err := b.client.Complete(ctx, request{
		Model:     b.model,
		MaxTokens: b.maxTokens,
		MimeType:  mimeType,
		Image:     image,
		Prompt:    buildPrompt(hint),
	})
	if err != nil {
		return extraction.Result{}, classify(err)
	}
	logUsage(b.model, resp)

	raw := json.RawMessage(stripFences(resp.Text))
	if !json.Valid(raw) {
		telemetry.Warn("vision.invalid_json", map[string]any{"model": b.model, "bytes": len(resp.Text)})
		resp, err = b.client.Complete(ctx, request{
			Model:     b.model,
			MaxTokens: b.maxTokens,
			Prompt:    fixJSONPrompt + resp.Text,
		})
		if err != nil {
			return extraction.Result{}, classify(err)
		}
		logUsage(b.model, resp)
		raw = json.RawMessage(stripFences(resp.Text))
		if !json.Valid(raw) {
			return extraction.Result{}, eris.New("invalid JSON from vision model")
		}
	}

	payload, reported, err := extraction.DecodePayload(raw)
	if err != nil {
		return extraction.Result{}, err
	}
	confidence := extraction.DefaultConfidence
	if reported != nil {
		confidence = *reported
	}
	return extraction.Result{
		Backend:    Name,
		Payload:    payload,
		Raw:        raw,
		Confidence: extraction.ClampConfidence(confidence),
		Duration:   time.Since(start),
	}, nil
}

// classify marks rate limits and upstream failures as transient.
func classify(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500 {
			return extraction.Transient(err)
		}
		return err
	}
	if extraction.IsTransient(err) {
		return extraction.Transient(err)
	}
	return err
}

func logUsage(model string, resp response) {
	telemetry.Info("vision.usage", map[string]any{
		"model":         model,
		"input_tokens":  resp.InputTokens,
		"output_tokens": resp.OutputTokens,
	})
}

type sdkCompleter struct {
	client sdk.Client
}

func (c *sdkCompleter) Complete(ctx context.Context, req request) (response, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, 2)
	if len(req.Image) > 0 {
		blocks = append(blocks, sdk.NewImageBlockBase64(req.MimeType, base64.StdEncoding.EncodeToString(req.Image)))
	}
	blocks = append(blocks, sdk.NewTextBlock(req.Prompt))

	msg, err := c.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:       sdk.Model(req.Model),
		MaxTokens:   req.MaxTokens,
		Temperature: sdk.Float(0),
		Messages:    []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return response{}, eris.Wrap(err, "anthropic: create message")
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return response{
		Text:         text.String(),
		InputTokens:  msg.Usage.InputTokens,
		OutputTokens: msg.Usage.OutputTokens,
	}, nil
}
