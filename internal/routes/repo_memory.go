package routes

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo is an in-memory Repo.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Candidate
	list map[string][]string // contributionID -> candidate IDs in insert order
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[string]Candidate{}, list: map[string][]string{}}
}

// InsertBatch stores candidates. IDs already present are left untouched.
func (r *MemoryRepo) InsertBatch(ctx context.Context, candidates []Candidate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range candidates {
		if _, exists := r.byID[c.ID]; exists {
			continue
		}
		r.byID[c.ID] = c
		r.list[c.ContributionID] = append(r.list[c.ContributionID], c.ID)
	}
	return nil
}

// ListByContribution returns candidates ordered by group and schedule index.
func (r *MemoryRepo) ListByContribution(ctx context.Context, contributionID string) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	ids := r.list[contributionID]
	out := make([]Candidate, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RouteGroupID != out[j].RouteGroupID {
			return out[i].RouteGroupID < out[j].RouteGroupID
		}
		return out[i].ScheduleIndex < out[j].ScheduleIndex
	})
	return out, nil
}

// Count returns the number of stored candidates.
func (r *MemoryRepo) Count(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID), nil
}
