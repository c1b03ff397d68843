// Package locations resolves free-text place names from schedule boards to
// canonical locations.
package locations

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/patrickmn/go-cache"

	"schedule-backend/internal/shared/telemetry"
)

// Source tags how a resolution was produced.
type Source string

const (
	SourceExact      Source = "exact-registry"
	SourceFuzzy      Source = "fuzzy-registry"
	SourceUnverified Source = "unverified"
	SourceKeyword    Source = "rejected-keyword"
	SourceUnknown    Source = "unknown"
)

const (
	// DefaultMinConfidence is the lowest registry confidence accepted as a match.
	DefaultMinConfidence = 0.5
	// UnverifiedConfidence is reported for names accepted without a registry match.
	UnverifiedConfidence = 0.3

	minUnverifiedLetters = 4
)

// Resolution is the outcome of resolving one name. An empty ResolvedName
// means the name must be discarded.
type Resolution struct {
	ResolvedName string  `json:"resolvedName,omitempty"`
	OriginalText string  `json:"originalText"`
	Confidence   float64 `json:"confidence"`
	Source       Source  `json:"source"`
	Verified     bool    `json:"verified"`
}

// Resolved reports whether the name survived resolution.
func (r Resolution) Resolved() bool { return r.ResolvedName != "" }

// Options configures a Resolver.
type Options struct {
	MinConfidence float64
	CacheTTL      time.Duration
}

// Resolver resolves names against a Registry and memoizes the results.
type Resolver struct {
	registry      Registry
	minConfidence float64
	cache         *cache.Cache
}

// NewResolver builds a resolver. A nil registry falls back to StaticRegistry.
func NewResolver(reg Registry, opts Options) *Resolver {
	if reg == nil {
		reg = StaticRegistry{}
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = DefaultMinConfidence
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 30 * time.Minute
	}
	return &Resolver{
		registry:      reg,
		minConfidence: opts.MinConfidence,
		cache:         cache.New(opts.CacheTTL, 2*opts.CacheTTL),
	}
}

// Resolve maps name to a canonical location. Keywords are rejected before
// any lookup; registry failures degrade to the unverified path.
func (r *Resolver) Resolve(ctx context.Context, name string) Resolution {
	normalized := normalize(name)
	if normalized == "" {
		return Resolution{OriginalText: name, Source: SourceUnknown}
	}
	if IsKeyword(normalized) {
		return Resolution{OriginalText: name, Source: SourceKeyword}
	}
	if v, ok := r.cache.Get(normalized); ok {
		res := v.(Resolution)
		res.OriginalText = name
		return res
	}

	res, cacheable := r.resolve(ctx, name, normalized)
	if cacheable {
		r.cache.SetDefault(normalized, res)
	}
	return res
}

func (r *Resolver) resolve(ctx context.Context, name, normalized string) (Resolution, bool) {
	m, ok, err := r.registry.Lookup(ctx, normalized)
	if err != nil {
		telemetry.Warn("locations.lookup_failed", map[string]any{"name": normalized, "error": err})
	}
	if ok && m.Confidence >= r.minConfidence {
		return Resolution{
			ResolvedName: m.Name,
			OriginalText: name,
			Confidence:   m.Confidence,
			Source:       m.Source,
			Verified:     m.Verified,
		}, err == nil
	}

	cleaned, letters := unverifiedName(normalized)
	if letters >= minUnverifiedLetters && !IsKeyword(cleaned) {
		return Resolution{
			ResolvedName: cleaned,
			OriginalText: name,
			Confidence:   UnverifiedConfidence,
			Source:       SourceUnverified,
		}, err == nil
	}
	return Resolution{OriginalText: name, Source: SourceUnknown}, err == nil
}

// ResolveAll resolves each name in order.
func (r *Resolver) ResolveAll(ctx context.Context, names []string) []Resolution {
	out := make([]Resolution, 0, len(names))
	for _, n := range names {
		out = append(out, r.Resolve(ctx, n))
	}
	return out
}

// ClearCache drops every memoized resolution.
func (r *Resolver) ClearCache() {
	r.cache.Flush()
	telemetry.Info("locations.cache_cleared", nil)
}

// CacheStats describes the resolver cache.
type CacheStats struct {
	CacheSize   int `json:"cacheSize"`
	KnownCities int `json:"knownCities"`
}

func (r *Resolver) CacheStats() CacheStats {
	return CacheStats{CacheSize: r.cache.ItemCount(), KnownCities: len(knownCities)}
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Mc, r)
}

// unverifiedName keeps the letters of s as words separated by single
// spaces ("NEW  TOWN-2" becomes "NEW TOWN"). Apostrophes are dropped inside
// words. It also returns the number of letters kept.
func unverifiedName(s string) (string, int) {
	letters := 0
	spaced := strings.Map(func(r rune) rune {
		switch {
		case isNameRune(r):
			letters++
			return r
		case r == '\'' || r == '’':
			return -1
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(spaced), " "), letters
}

var viaSplit = regexp.MustCompile(`[,\s]+`)

// IsViaCity reports whether destination appears as a stop in the via list.
func IsViaCity(destination, via string) bool {
	dest := strings.TrimSpace(destination)
	if dest == "" || strings.TrimSpace(via) == "" {
		return false
	}
	for _, stop := range viaSplit.Split(via, -1) {
		if stop != "" && strings.EqualFold(stop, dest) {
			return true
		}
	}
	return false
}
