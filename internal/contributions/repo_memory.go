package contributions

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo stores contributions in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Contribution
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Contribution)}
}

// Create stores the contribution.
func (r *MemoryRepo) Create(ctx context.Context, c Contribution) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	return nil
}

// GetByID returns a contribution by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, id string) (Contribution, error) {
	if err := ctx.Err(); err != nil {
		return Contribution{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[id]
	if !ok {
		return Contribution{}, ErrNotFound
	}
	return c, nil
}

// ListBySubmitter returns a submitter's contributions newest first.
func (r *MemoryRepo) ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]Contribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []Contribution
	for _, c := range r.byID {
		if c.SubmitterID == submitterID {
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if offset > len(out) {
		return []Contribution{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// Finish records a terminal outcome for a PROCESSING contribution.
func (r *MemoryRepo) Finish(ctx context.Context, id string, out Outcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if c.Status != StatusProcessing {
		return ErrStaleTransition
	}
	finished := out.FinishedAt.UTC()
	c.Status = out.Status
	c.ValidationMessage = out.Message
	if out.Backend != "" {
		c.Backend = out.Backend
	}
	if out.Confidence != nil {
		conf := *out.Confidence
		c.Confidence = &conf
	}
	if out.Payload != nil {
		c.ExtractedPayload = out.Payload
	}
	c.ProcessedAt = &finished
	c.UpdatedAt = finished
	r.byID[id] = c
	return nil
}

// TransitionForRetry resets a retryable contribution to PROCESSING.
func (r *MemoryRepo) TransitionForRetry(ctx context.Context, id string, now time.Time) (Contribution, bool, error) {
	if err := ctx.Err(); err != nil {
		return Contribution{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return Contribution{}, false, ErrNotFound
	}
	if !c.Status.IsRetryable() {
		return c, false, nil
	}
	c.Status = StatusProcessing
	c.ValidationMessage = msgRetryRequested
	c.ProcessedAt = nil
	c.Attempts++
	c.UpdatedAt = now.UTC()
	r.byID[id] = c
	return c, true, nil
}

// CountByStatus returns the number of contributions per status.
func (r *MemoryRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[Status]int)
	for _, c := range r.byID {
		counts[c.Status]++
	}
	return counts, nil
}
