package routes

import "context"

// Repo persists candidates. Candidates are write-once.
type Repo interface {
	InsertBatch(ctx context.Context, candidates []Candidate) error
	ListByContribution(ctx context.Context, contributionID string) ([]Candidate, error)
	Count(ctx context.Context) (int, error)
}
