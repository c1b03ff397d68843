package contributions

import (
	"time"

	"schedule-backend/internal/extraction"
)

type statusResponse struct {
	ID             string              `json:"id"`
	Status         Status              `json:"status"`
	Message        string              `json:"message,omitempty"`
	SubmittedAt    time.Time           `json:"submittedAt"`
	ProcessedAt    *time.Time          `json:"processedAt"`
	Confidence     *float64            `json:"confidence,omitempty"`
	Backend        string              `json:"backend,omitempty"`
	Attempts       int                 `json:"attempts"`
	PayloadSummary *extraction.Summary `json:"payloadSummary,omitempty"`
}

func toStatusResponse(c Contribution) statusResponse {
	return statusResponse{
		ID:             c.ID,
		Status:         c.Status,
		Message:        c.ValidationMessage,
		SubmittedAt:    c.SubmittedAt,
		ProcessedAt:    c.ProcessedAt,
		Confidence:     c.Confidence,
		Backend:        c.Backend,
		Attempts:       c.Attempts,
		PayloadSummary: c.PayloadSummary(),
	}
}
