package locations

import (
	"context"
	"strings"

	"github.com/agext/levenshtein"
)

// Match is a registry hit for a normalized name.
type Match struct {
	Name       string
	Confidence float64
	Source     Source
	Verified   bool
}

// Registry looks up canonical locations. Lookup receives a trimmed,
// upper-cased name and reports ok=false when nothing matched.
type Registry interface {
	Lookup(ctx context.Context, normalized string) (Match, bool, error)
}

// maxEdits bounds fuzzy matches against short registry names.
const maxEdits = 2

// StaticRegistry matches against the built-in city list and aliases.
type StaticRegistry struct{}

// Lookup tries an exact/alias hit, then the closest known name within two
// edits.
func (StaticRegistry) Lookup(ctx context.Context, normalized string) (Match, bool, error) {
	if c, ok := Canonical(normalized); ok {
		return Match{Name: c, Confidence: 1, Source: SourceExact, Verified: true}, true, nil
	}
	if len([]rune(normalized)) < 4 {
		return Match{}, false, nil
	}
	name, sim, ok := closest(normalized, fuzzyCandidates)
	if !ok {
		return Match{}, false, nil
	}
	return Match{Name: name, Confidence: sim, Source: SourceFuzzy, Verified: sim >= 0.9}, true, nil
}

type fuzzyCandidate struct {
	text      string
	canonical string
}

var fuzzyCandidates = func() []fuzzyCandidate {
	out := make([]fuzzyCandidate, 0, len(knownCities)+len(aliases))
	for _, c := range knownCities {
		out = append(out, fuzzyCandidate{text: c, canonical: c})
	}
	for a, c := range aliases {
		if isASCII(a) {
			out = append(out, fuzzyCandidate{text: a, canonical: c})
		}
	}
	return out
}()

// closest returns the canonical name of the most similar candidate within
// maxEdits. Ties keep the alphabetically first canonical name.
func closest(normalized string, candidates []fuzzyCandidate) (string, float64, bool) {
	bestName := ""
	bestSim := 0.0
	for _, c := range candidates {
		if levenshtein.Distance(normalized, c.text, nil) > maxEdits {
			continue
		}
		sim := levenshtein.Similarity(normalized, c.text, nil)
		if sim > bestSim || (sim == bestSim && c.canonical < bestName) {
			bestName, bestSim = c.canonical, sim
		}
	}
	return bestName, bestSim, bestName != ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// ChainRegistry asks each registry in turn and returns the first match at or
// above MinConfidence. A failing registry does not stop the chain; its error
// is returned only when nothing matched.
type ChainRegistry struct {
	Registries    []Registry
	MinConfidence float64
}

func (c ChainRegistry) Lookup(ctx context.Context, normalized string) (Match, bool, error) {
	var firstErr error
	var best Match
	found := false
	for _, reg := range c.Registries {
		if reg == nil {
			continue
		}
		m, ok, err := reg.Lookup(ctx, normalized)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !ok {
			continue
		}
		if m.Confidence >= c.MinConfidence {
			return m, true, nil
		}
		if !found || m.Confidence > best.Confidence {
			best, found = m, true
		}
	}
	if found {
		return best, true, nil
	}
	return Match{}, false, firstErr
}

func normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
