package contributions

import (
	"encoding/json"
	"time"

	"schedule-backend/internal/extraction"
)

// Status is the lifecycle state of a contribution.
type Status string

const (
	StatusProcessing    Status = "PROCESSING"
	StatusProcessed     Status = "PROCESSED"
	StatusManualReview  Status = "MANUAL_REVIEW_NEEDED"
	StatusLowConfidence Status = "LOW_CONFIDENCE_OCR"
	StatusFailed        Status = "PROCESSING_FAILED"
	StatusUploadFailed  Status = "UPLOAD_FAILED"
)

// IsTerminal reports whether no further automatic transition happens from s.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusProcessed, StatusManualReview, StatusLowConfidence, StatusFailed, StatusUploadFailed:
		return true
	default:
		return false
	}
}

// IsRetryable reports whether a user may request another processing attempt.
func (s Status) IsRetryable() bool {
	switch s {
	case StatusFailed, StatusLowConfidence, StatusUploadFailed:
		return true
	default:
		return false
	}
}

const (
	defaultDescription = "Bus schedule image"

	msgMediumConfidence = "Medium confidence OCR extraction. Manual review required."
	msgLowConfidence    = "Low confidence OCR extraction. Manual processing required. Raw extracted text available for review."
	msgRetryNoImage     = "Retry processing: Image stored but original file no longer available. Manual review required."
	msgRetryRequested   = "Retry requested"
	msgQueued           = "Queued for processing"
	msgCancelled        = "Processing failed: cancelled at shutdown before completion. Retry to process again."
)

// Contribution is one submitted schedule image and its processing outcome.
type Contribution struct {
	ID                string          `json:"id"`
	SubmitterID       string          `json:"submitterId"`
	ImageRef          string          `json:"imageRef,omitempty"`
	FileName          string          `json:"fileName"`
	MimeType          string          `json:"mimeType"`
	SizeBytes         int64           `json:"sizeBytes"`
	Description       string          `json:"description"`
	LocationHint      string          `json:"location,omitempty"`
	RouteNameHint     string          `json:"routeName,omitempty"`
	AdditionalNotes   string          `json:"additionalNotes,omitempty"`
	Status            Status          `json:"status"`
	Backend           string          `json:"backend,omitempty"`
	Confidence        *float64        `json:"confidence,omitempty"`
	ExtractedPayload  json.RawMessage `json:"extractedPayload,omitempty"`
	ValidationMessage string          `json:"message,omitempty"`
	Attempts          int             `json:"attempts"`
	SubmittedAt       time.Time       `json:"submittedAt"`
	ProcessedAt       *time.Time      `json:"processedAt,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Outcome is the terminal result written by the single processing path.
type Outcome struct {
	Status     Status
	Message    string
	Backend    string
	Confidence *float64
	Payload    json.RawMessage
	FinishedAt time.Time
}

// storedPayload is what gets persisted as ExtractedPayload.
type storedPayload struct {
	Kind    extraction.Kind     `json:"kind"`
	Bundles []extraction.Bundle `json:"bundles,omitempty"`
	Raw     json.RawMessage     `json:"raw,omitempty"`
	RawText string              `json:"rawText,omitempty"`
}

func encodePayload(res extraction.Result) json.RawMessage {
	data, err := json.Marshal(storedPayload{
		Kind:    res.Payload.Kind,
		Bundles: res.Payload.Bundles(),
		Raw:     res.Raw,
		RawText: res.RawText,
	})
	if err != nil {
		return nil
	}
	return data
}

// PayloadSummary decodes the stored payload into a polling summary. It
// returns nil when nothing was extracted yet.
func (c Contribution) PayloadSummary() *extraction.Summary {
	if len(c.ExtractedPayload) == 0 {
		return nil
	}
	var sp storedPayload
	if err := json.Unmarshal(c.ExtractedPayload, &sp); err != nil {
		return nil
	}
	summary := extraction.FromBundles("", sp.Bundles).Summarize()
	summary.Kind = sp.Kind
	return &summary
}
