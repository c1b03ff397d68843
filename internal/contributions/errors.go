package contributions

import "github.com/rotisserie/eris"

var (
	ErrNotFound        = eris.New("contribution not found")
	ErrInvalidInput    = eris.New("invalid contribution input")
	ErrStaleTransition = eris.New("contribution is no longer processing")
	ErrNoScheduler     = eris.New("no worker pool or job queue configured")
)

const (
	ErrorCodeValidation  = "VALIDATION_ERROR"
	ErrorCodeNotFound    = "NOT_FOUND"
	ErrorCodeNotRetrying = "NOT_RETRYABLE"
	ErrorCodeStorage     = "STORAGE_ERROR"
	ErrorCodeInternal    = "INTERNAL_ERROR"
)
