package contributions

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryRepoFinishRequiresProcessing(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := repo.Create(ctx, Contribution{ID: "c-1", Status: StatusProcessing, SubmittedAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := repo.Finish(ctx, "c-1", Outcome{Status: StatusProcessed, Message: "ok", FinishedAt: now}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	err := repo.Finish(ctx, "c-1", Outcome{Status: StatusFailed, FinishedAt: now})
	if !errors.Is(err, ErrStaleTransition) {
		t.Fatalf("expected ErrStaleTransition, got %v", err)
	}
	c, err := repo.GetByID(ctx, "c-1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if c.Status != StatusProcessed || c.ProcessedAt == nil {
		t.Fatalf("expected PROCESSED with processedAt, got %s %v", c.Status, c.ProcessedAt)
	}
	if err := repo.Finish(ctx, "missing", Outcome{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryRepoTransitionForRetry(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()
	processed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for id, status := range map[string]Status{
		"failed":   StatusFailed,
		"low":      StatusLowConfidence,
		"upload":   StatusUploadFailed,
		"done":     StatusProcessed,
		"review":   StatusManualReview,
		"inflight": StatusProcessing,
	} {
		c := Contribution{ID: id, Status: status, Attempts: 1}
		if status.IsTerminal() {
			c.ProcessedAt = &processed
		}
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	for _, id := range []string{"failed", "low", "upload"} {
		c, ok, err := repo.TransitionForRetry(ctx, id, processed.Add(time.Minute))
		if err != nil || !ok {
			t.Fatalf("expected %s to be retryable, ok=%v err=%v", id, ok, err)
		}
		if c.Status != StatusProcessing || c.ProcessedAt != nil || c.Attempts != 2 {
			t.Fatalf("unexpected state for %s: %+v", id, c)
		}
	}
	for _, id := range []string{"done", "review", "inflight"} {
		_, ok, err := repo.TransitionForRetry(ctx, id, processed)
		if err != nil || ok {
			t.Fatalf("expected %s to be rejected, ok=%v err=%v", id, ok, err)
		}
	}
}
