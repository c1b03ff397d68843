package locations

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"github.com/rotisserie/eris"
)

// PGRegistry looks names up in the locations table.
type PGRegistry struct {
	DB *sql.DB
}

// Lookup tries an exact name or alias hit, then scores names that share the
// first two letters.
func (r *PGRegistry) Lookup(ctx context.Context, normalized string) (Match, bool, error) {
	const exactQuery = `
SELECT name, verified
FROM locations
WHERE upper(name) = $1 OR $1 = ANY(string_to_array(upper(aliases), ','))
LIMIT 1`
	var name string
	var verified bool
	err := r.DB.QueryRowContext(ctx, exactQuery, normalized).Scan(&name, &verified)
	switch {
	case err == nil:
		return Match{Name: strings.ToUpper(name), Confidence: 1, Source: SourceExact, Verified: verified}, true, nil
	case !errors.Is(err, sql.ErrNoRows):
		return Match{}, false, eris.Wrap(err, "locations: exact lookup")
	}

	runes := []rune(normalized)
	if len(runes) < 4 {
		return Match{}, false, nil
	}
	const prefixQuery = `
SELECT name, verified
FROM locations
WHERE upper(name) LIKE $1
ORDER BY name
LIMIT 25`
	rows, err := r.DB.QueryContext(ctx, prefixQuery, string(runes[:2])+"%")
	if err != nil {
		return Match{}, false, eris.Wrap(err, "locations: prefix lookup")
	}
	defer rows.Close()

	var best Match
	found := false
	for rows.Next() {
		var candidate string
		var candidateVerified bool
		if err := rows.Scan(&candidate, &candidateVerified); err != nil {
			return Match{}, false, eris.Wrap(err, "locations: scan")
		}
		upper := strings.ToUpper(candidate)
		if levenshtein.Distance(normalized, upper, nil) > maxEdits {
			continue
		}
		sim := levenshtein.Similarity(normalized, upper, nil)
		if !found || sim > best.Confidence {
			best = Match{Name: upper, Confidence: sim, Source: SourceFuzzy, Verified: candidateVerified && sim >= 0.9}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return Match{}, false, eris.Wrap(err, "locations: rows")
	}
	return best, found, nil
}

// Upsert records a location and its aliases.
func (r *PGRegistry) Upsert(ctx context.Context, name string, aliasList []string, verified bool) error {
	const query = `
INSERT INTO locations (name, aliases, verified)
VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET aliases = EXCLUDED.aliases, verified = EXCLUDED.verified`
	cleaned := make([]string, 0, len(aliasList))
	for _, a := range aliasList {
		if a = normalize(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	_, err := r.DB.ExecContext(ctx, query, normalize(name), strings.Join(cleaned, ","), verified)
	return eris.Wrapf(err, "locations: upsert %s", name)
}

// SeedKnownCities writes the built-in city list and aliases.
func (r *PGRegistry) SeedKnownCities(ctx context.Context) (int, error) {
	byCity := map[string][]string{}
	for a, c := range aliases {
		byCity[c] = append(byCity[c], a)
	}
	for _, list := range byCity {
		sort.Strings(list)
	}
	for _, c := range knownCities {
		if err := r.Upsert(ctx, c, byCity[c], true); err != nil {
			return 0, err
		}
	}
	return len(knownCities), nil
}
