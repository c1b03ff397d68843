package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name      string
	available bool
	result    Result
	err       error
	panicMsg  string
	calls     int
}

func (f *fakeBackend) Name() string      { return f.name }
func (f *fakeBackend) IsAvailable() bool { return f.available }

func (f *fakeBackend) Extract(ctx context.Context, image []byte, mimeType string) (Result, error) {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result, f.err
}

func routesPayload() Payload {
	return FromBundles("CHENNAI", []Bundle{{Origin: "CHENNAI", Destination: "SALEM", DepartureTime: "06:00"}})
}

func TestChainUsesPrimaryWhenItFindsRoutes(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, result: Result{Payload: routesPayload(), Confidence: 0.9}}
	secondary := &fakeBackend{name: "ocr", available: true}

	res, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "vision", res.Backend)
	assert.Equal(t, 0.9, res.Confidence)
	assert.Equal(t, 0, secondary.calls)
}

func TestChainFallsBackOnPrimaryError(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, err: errors.New("boom")}
	secondary := &fakeBackend{name: "ocr", available: true, result: Result{Payload: routesPayload(), Confidence: 0.7}}

	res, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), []byte("img"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "ocr", res.Backend)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 1, secondary.calls)
}

func TestChainFallsBackOnEmptyPrimary(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, result: Result{Payload: Payload{Kind: KindEmpty}}}
	secondary := &fakeBackend{name: "ocr", available: true, result: Result{Payload: routesPayload(), Confidence: 0.65}}

	res, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "ocr", res.Backend)
}

func TestChainSkipsUnavailablePrimary(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: false}
	secondary := &fakeBackend{name: "ocr", available: true, result: Result{Payload: routesPayload(), Confidence: 0.4}}

	res, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 0, primary.calls)
	assert.Equal(t, "ocr", res.Backend)
}

func TestChainAcceptsLowConfidenceEmptySecondary(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, err: errors.New("down")}
	secondary := &fakeBackend{name: "ocr", available: true, result: Result{Payload: Payload{Kind: KindEmpty}, Confidence: 0.2}}

	res, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 0.2, res.Confidence)
	assert.True(t, res.Payload.IsEmpty())
}

func TestChainReportsBothFailures(t *testing.T) {
	primaryErr := errors.New("vision down")
	secondaryErr := errors.New("tesseract missing")
	primary := &fakeBackend{name: "vision", available: true, err: primaryErr}
	secondary := &fakeBackend{name: "ocr", available: true, err: secondaryErr}

	_, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")
	require.Error(t, err)

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, secondaryErr)
	assert.Contains(t, err.Error(), "all extraction backends failed")
}

func TestChainRecoversBackendPanic(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, panicMsg: "nil map"}
	secondary := &fakeBackend{name: "ocr", available: true, result: Result{Payload: routesPayload(), Confidence: 0.6}}

	res, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "ocr", res.Backend)
}

func TestChainClampsConfidence(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, result: Result{Payload: routesPayload(), Confidence: 1.7}}

	res, err := Chain{Primary: primary}.Extract(context.Background(), nil, "image/png")
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Confidence)
}

func TestChainWithoutSecondary(t *testing.T) {
	_, err := Chain{Primary: &fakeBackend{name: "vision", available: false}}.Extract(context.Background(), nil, "image/png")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestChainSkipsUnavailableSecondary(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: false}
	secondary := &fakeBackend{name: "ocr", available: false, result: Result{Payload: routesPayload(), Confidence: 0.9}}

	_, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.ErrorIs(t, chainErr.Primary, ErrUnavailable)
	assert.ErrorIs(t, chainErr.Secondary, ErrUnavailable)
	assert.Zero(t, primary.calls)
	assert.Zero(t, secondary.calls)
	assert.False(t, Chain{Primary: primary, Secondary: secondary}.IsAvailable())
}

func TestChainPrimaryErrorWithDisabledSecondary(t *testing.T) {
	primary := &fakeBackend{name: "vision", available: true, err: errors.New("quota exceeded")}
	secondary := &fakeBackend{name: "ocr", available: false}

	_, err := Chain{Primary: primary, Secondary: secondary}.Extract(context.Background(), nil, "image/png")

	var chainErr *ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.ErrorContains(t, chainErr.Primary, "quota exceeded")
	assert.ErrorIs(t, chainErr.Secondary, ErrUnavailable)
	assert.Zero(t, secondary.calls)
}
