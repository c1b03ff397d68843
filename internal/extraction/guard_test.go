package extraction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyBackend struct {
	failures    int
	err         error
	calls       int
	sawDeadline bool
}

func (f *flakyBackend) Name() string { return "flaky" }

func (f *flakyBackend) Extract(ctx context.Context, image []byte, mimeType string) (Result, error) {
	f.calls++
	if _, ok := ctx.Deadline(); ok {
		f.sawDeadline = true
	}
	if f.calls <= f.failures {
		return Result{}, f.err
	}
	return Result{Payload: routesPayload(), Confidence: 0.8}, nil
}

func TestGuardRetriesTransientErrors(t *testing.T) {
	b := &flakyBackend{failures: 2, err: Transient(errors.New("429 rate limited"))}
	g := Guard(b, GuardOptions{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond})

	res, err := g.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 3, b.calls)
	assert.Equal(t, 0.8, res.Confidence)
}

func TestGuardDoesNotRetryPermanentErrors(t *testing.T) {
	perm := errors.New("invalid request")
	b := &flakyBackend{failures: 5, err: perm}
	g := Guard(b, GuardOptions{Attempts: 3, InitialBackoff: time.Millisecond})

	_, err := g.Extract(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, perm)
	assert.Equal(t, 1, b.calls)
}

func TestGuardGivesUpAfterAttempts(t *testing.T) {
	b := &flakyBackend{failures: 10, err: Transient(errors.New("503"))}
	g := Guard(b, GuardOptions{Attempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})

	_, err := g.Extract(context.Background(), nil, "image/png")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Equal(t, 2, b.calls)
}

func TestGuardAppliesPerCallTimeout(t *testing.T) {
	b := &flakyBackend{}
	g := Guard(b, GuardOptions{Timeout: time.Second})

	_, err := g.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.True(t, b.sawDeadline)
}

func TestGuardPreservesAvailability(t *testing.T) {
	g := Guard(&fakeBackend{name: "vision", available: false}, GuardOptions{})
	assert.False(t, IsAvailable(g))
	assert.Equal(t, "vision", g.Name())
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.False(t, IsTransient(errors.New("bad json")))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(errors.New("read: connection reset by peer")))
	assert.True(t, IsTransient(Transient(errors.New("x"))))
}
