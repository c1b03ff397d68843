package locations

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRegistry struct {
	calls int
	match Match
	ok    bool
	err   error
}

func (c *countingRegistry) Lookup(ctx context.Context, normalized string) (Match, bool, error) {
	c.calls++
	return c.match, c.ok, c.err
}

func TestResolveRejectsKeywordsInAnyCase(t *testing.T) {
	r := NewResolver(nil, Options{})
	for _, name := range []string{"EXPRESS", "express", " Ac ", "via", "Fare", "non ac", "Sleeper", "TNSTC"} {
		res := r.Resolve(context.Background(), name)
		assert.False(t, res.Resolved(), name)
		assert.Equal(t, SourceKeyword, res.Source, name)
	}
}

func TestResolveExactAndAlias(t *testing.T) {
	r := NewResolver(nil, Options{})

	res := r.Resolve(context.Background(), "  chennai ")
	assert.Equal(t, "CHENNAI", res.ResolvedName)
	assert.Equal(t, SourceExact, res.Source)
	assert.Equal(t, 1.0, res.Confidence)
	assert.True(t, res.Verified)

	assert.Equal(t, "CHENNAI", r.Resolve(context.Background(), "Madras").ResolvedName)
	assert.Equal(t, "TRICHY", r.Resolve(context.Background(), "Tiruchirappalli").ResolvedName)
	assert.Equal(t, "MADURAI", r.Resolve(context.Background(), "மதுரை").ResolvedName)
}

func TestResolveFuzzy(t *testing.T) {
	r := NewResolver(nil, Options{})
	res := r.Resolve(context.Background(), "Coimbator")
	assert.Equal(t, "COIMBATORE", res.ResolvedName)
	assert.Equal(t, SourceFuzzy, res.Source)
	assert.InDelta(t, 0.9, res.Confidence, 0.001)
}

func TestResolveUnverifiedAndUnknown(t *testing.T) {
	r := NewResolver(nil, Options{})

	res := r.Resolve(context.Background(), "Kallupatti")
	assert.Equal(t, "KALLUPATTI", res.ResolvedName)
	assert.Equal(t, SourceUnverified, res.Source)
	assert.Equal(t, UnverifiedConfidence, res.Confidence)
	assert.False(t, res.Verified)

	for _, name := range []string{"", "  ", "AB1", "12:30", "X-Y"} {
		res := r.Resolve(context.Background(), name)
		assert.False(t, res.Resolved(), name)
		assert.Equal(t, SourceUnknown, res.Source, name)
	}
}

func TestResolveUnverifiedKeepsWordBoundaries(t *testing.T) {
	r := NewResolver(nil, Options{})

	cases := map[string]string{
		"New Town":         "NEW TOWN",
		"  new   town  ":   "NEW TOWN",
		"Anna Nagar-2":     "ANNA NAGAR",
		"St. Thomas Mount": "ST THOMAS MOUNT",
		"O'Valley":         "OVALLEY",
	}
	for in, want := range cases {
		res := r.Resolve(context.Background(), in)
		assert.Equal(t, want, res.ResolvedName, in)
		assert.Equal(t, SourceUnverified, res.Source, in)
	}
}

func TestResolveIgnoresLowConfidenceMatch(t *testing.T) {
	reg := &countingRegistry{match: Match{Name: "SALEM", Confidence: 0.4, Source: SourceFuzzy}, ok: true}
	res := NewResolver(reg, Options{}).Resolve(context.Background(), "Sulur")
	assert.Equal(t, "SULUR", res.ResolvedName)
	assert.Equal(t, SourceUnverified, res.Source)
}

func TestResolveCachesResults(t *testing.T) {
	reg := &countingRegistry{match: Match{Name: "ERODE", Confidence: 1, Source: SourceExact}, ok: true}
	r := NewResolver(reg, Options{})

	first := r.Resolve(context.Background(), "erode")
	second := r.Resolve(context.Background(), "ERODE ")
	assert.Equal(t, first.ResolvedName, second.ResolvedName)
	assert.Equal(t, "ERODE ", second.OriginalText)
	assert.Equal(t, 1, reg.calls)
	assert.Equal(t, 1, r.CacheStats().CacheSize)

	r.ClearCache()
	assert.Equal(t, 0, r.CacheStats().CacheSize)
	r.Resolve(context.Background(), "erode")
	assert.Equal(t, 2, reg.calls)
}

func TestResolveDoesNotCacheRegistryErrors(t *testing.T) {
	reg := &countingRegistry{err: errors.New("db down")}
	r := NewResolver(reg, Options{})

	res := r.Resolve(context.Background(), "Karaikudi")
	assert.Equal(t, SourceUnverified, res.Source)
	r.Resolve(context.Background(), "Karaikudi")
	assert.Equal(t, 2, reg.calls)
}

func TestResolveAllKeepsOrder(t *testing.T) {
	out := NewResolver(nil, Options{}).ResolveAll(context.Background(), []string{"Salem", "AC", "Theni"})
	require.Len(t, out, 3)
	assert.Equal(t, "SALEM", out[0].ResolvedName)
	assert.False(t, out[1].Resolved())
	assert.Equal(t, "THENI", out[2].ResolvedName)
}

func TestIsViaCity(t *testing.T) {
	assert.True(t, IsViaCity("SALEM", "Salem, Trichy"))
	assert.False(t, IsViaCity("MADURAI", "Salem, Trichy"))
	assert.True(t, IsViaCity("trichy", "Salem,Trichy"))
	assert.True(t, IsViaCity("Karur", "Dindigul Karur"))
	assert.False(t, IsViaCity("SALEM", ""))
	assert.False(t, IsViaCity("", "Salem"))
}

func TestChainRegistryPrefersConfidentMatch(t *testing.T) {
	weak := &countingRegistry{match: Match{Name: "A", Confidence: 0.4}, ok: true}
	strong := &countingRegistry{match: Match{Name: "B", Confidence: 0.9}, ok: true}
	failing := &countingRegistry{err: errors.New("boom")}

	m, ok, err := ChainRegistry{Registries: []Registry{failing, weak, strong}, MinConfidence: 0.5}.Lookup(context.Background(), "X")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B", m.Name)

	_, ok, err = ChainRegistry{Registries: []Registry{failing}}.Lookup(context.Background(), "X")
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCachedRegistryCachesMisses(t *testing.T) {
	inner := &countingRegistry{}
	c := NewCachedRegistry(inner, 0)
	for i := 0; i < 3; i++ {
		_, ok, err := c.Lookup(context.Background(), "NOWHERE")
		require.NoError(t, err)
		assert.False(t, ok)
	}
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, 1, c.Len())
}

func TestFindCities(t *testing.T) {
	got := FindCities("BUS TIMINGS AT MADURAI via Kovai and Madras")
	assert.Equal(t, []string{"MADURAI", "COIMBATORE", "CHENNAI"}, got)
}
