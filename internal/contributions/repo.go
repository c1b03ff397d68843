package contributions

import (
	"context"
	"time"
)

// Repo persists contributions.
type Repo interface {
	Create(ctx context.Context, c Contribution) error
	GetByID(ctx context.Context, id string) (Contribution, error)
	ListBySubmitter(ctx context.Context, submitterID string, limit, offset int) ([]Contribution, error)
	// Finish moves a PROCESSING contribution to a terminal outcome. It returns
	// ErrStaleTransition when the contribution is not PROCESSING.
	Finish(ctx context.Context, id string, out Outcome) error
	// TransitionForRetry atomically resets a retryable contribution to
	// PROCESSING. ok is false when the current status is not retryable.
	TransitionForRetry(ctx context.Context, id string, now time.Time) (c Contribution, ok bool, err error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}
