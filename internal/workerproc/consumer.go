package workerproc

import (
	"context"
	"errors"
	"strings"
	"time"

	"schedule-backend/internal/queue"
	"schedule-backend/internal/shared/metrics"
	"schedule-backend/internal/shared/telemetry"
	"schedule-backend/internal/workerpool"
)

// Scheduler runs deliveries off the receive loop.
type Scheduler interface {
	Submit(key string, run workerpool.Task) error
}

// Consumer long-polls a queue and hands each delivery to the pool. A message
// is deleted after successful processing or when it can never succeed;
// anything else is left for redelivery after the visibility timeout.
type Consumer struct {
	Receiver    queue.Receiver
	Processor   Processor
	Pool        Scheduler
	BatchSize   int32
	WaitSeconds int32
	// ErrorBackoff is the pause after a failed receive call.
	ErrorBackoff time.Duration
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	batch := c.BatchSize
	if batch <= 0 || batch > 10 {
		batch = 10
	}
	wait := c.WaitSeconds
	if wait <= 0 {
		wait = 20
	}
	backoff := c.ErrorBackoff
	if backoff <= 0 {
		backoff = time.Second
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		deliveries, err := c.Receiver.Receive(ctx, batch, wait)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			telemetry.Error("worker.receive_failed", map[string]any{"error": err.Error()})
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			continue
		}
		for _, d := range deliveries {
			metrics.IncJobsReceived()
			c.dispatch(d)
		}
	}
}

func (c *Consumer) dispatch(d queue.Delivery) {
	err := c.Pool.Submit("msg:"+d.ID, func(taskCtx context.Context) {
		c.Handle(taskCtx, d)
	})
	if err != nil {
		fields := baseFields(d, "", "")
		fields["error"] = err.Error()
		telemetry.Warn("worker.contribution.deferred", fields)
	}
}

// Handle processes one delivery and acknowledges it when appropriate.
func (c *Consumer) Handle(ctx context.Context, d queue.Delivery) {
	msg, meta, err := ParseMessage(d.Body)
	if err != nil {
		fields := baseFields(d, msg.ContributionID, msg.RequestID)
		fields["body_len"] = meta.BodyLen
		if meta.BodySHA != "" {
			fields["body_sha256"] = meta.BodySHA
		}
		fields["error"] = err.Error()
		telemetry.Error("worker.contribution.decode_failed", fields)
		if c.delete(ctx, d, msg.ContributionID, msg.RequestID) {
			metrics.IncJobsDeletedUnrecoverable()
		}
		return
	}

	telemetry.Info("worker.contribution.received", baseFields(d, msg.ContributionID, msg.RequestID))

	err = HandleMessage(WithParsedMessage(ctx, msg), c.Processor, d.Body)
	switch {
	case err == nil:
		if c.delete(ctx, d, msg.ContributionID, msg.RequestID) {
			telemetry.Info("worker.contribution.completed", baseFields(d, msg.ContributionID, msg.RequestID))
		}
	case IsUnrecoverable(err):
		fields := baseFields(d, msg.ContributionID, msg.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.contribution.unrecoverable", fields)
		if c.delete(ctx, d, msg.ContributionID, msg.RequestID) {
			metrics.IncJobsDeletedUnrecoverable()
		}
	default:
		fields := baseFields(d, msg.ContributionID, msg.RequestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.contribution.failed", fields)
	}
}

func (c *Consumer) delete(ctx context.Context, d queue.Delivery, contributionID, requestID string) bool {
	if strings.TrimSpace(d.ReceiptHandle) == "" {
		fields := baseFields(d, contributionID, requestID)
		fields["error"] = "missing receipt handle"
		telemetry.Error("worker.contribution.delete_failed", fields)
		return false
	}
	if err := c.Receiver.Delete(context.WithoutCancel(ctx), d.ReceiptHandle); err != nil {
		fields := baseFields(d, contributionID, requestID)
		fields["error"] = err.Error()
		telemetry.Error("worker.contribution.delete_failed", fields)
		return false
	}
	return true
}

func baseFields(d queue.Delivery, contributionID, requestID string) map[string]any {
	fields := map[string]any{
		"contribution_id": contributionID,
		"sqs_message_id":  d.ID,
		"receive_count":   d.ReceiveCount,
	}
	if strings.TrimSpace(requestID) != "" {
		fields["request_id"] = requestID
	}
	return fields
}
