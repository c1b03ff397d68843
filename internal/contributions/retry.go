package contributions

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"schedule-backend/internal/queue"
	"schedule-backend/internal/shared/metrics"
	"schedule-backend/internal/shared/telemetry"
)

// Retry resets a failed or low-confidence contribution to PROCESSING and
// schedules it again. accepted is false when the current status does not
// allow a retry, including when a concurrent retry already won.
func (s *Service) Retry(ctx context.Context, id string) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, eris.Wrap(ErrInvalidInput, "id is required")
	}
	c, ok, err := s.Repo.TransitionForRetry(ctx, id, s.now())
	if err != nil {
		return false, err
	}
	if !ok {
		metrics.IncRetry("rejected")
		telemetry.Info("contribution.retry_rejected", map[string]any{
			"request_id":      requestIDFromContext(ctx),
			"contribution_id": id,
			"status":          string(c.Status),
		})
		return false, nil
	}
	metrics.IncRetry("accepted")
	s.logStatus(ctx, c, "retry->"+string(StatusProcessing))

	if err := s.dispatch(ctx, c, queue.KindRetry); err != nil {
		if _, rejectErr := s.rejectDispatch(ctx, c, err); rejectErr != nil {
			return true, rejectErr
		}
	}
	return true, nil
}

// RunRetry reprocesses a contribution accepted by Retry. When the stored
// image cannot be reopened the contribution is handed to manual review.
func (s *Service) RunRetry(ctx context.Context, id string) error {
	return s.run(ctx, id, queue.KindRetry)
}
