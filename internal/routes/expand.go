package routes

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/locations"
	"schedule-backend/internal/shared/metrics"
)

// Skip explains why a bundle produced no candidates. The zero value means
// the bundle was expanded.
type Skip string

const (
	SkipNone                  Skip = ""
	SkipUnresolvedOrigin      Skip = "unresolved_origin"
	SkipUnresolvedDestination Skip = "unresolved_destination"
	SkipSameEndpoints         Skip = "same_endpoints"
	SkipViaDestination        Skip = "via_destination"
	SkipNoDepartures          Skip = "no_departures"
)

// LocationResolver is the resolver contract the engine depends on.
type LocationResolver interface {
	Resolve(ctx context.Context, name string) locations.Resolution
}

// candidateNamespace seeds deterministic candidate IDs.
var candidateNamespace = uuid.MustParse("4f6b3c2e-9a51-4d0e-8d7a-2b1f0c9e6a17")

// Engine expands bundles into candidates.
type Engine struct {
	Resolver LocationResolver
	Now      func() time.Time
}

// NewEngine builds an engine over r.
func NewEngine(r LocationResolver) *Engine {
	return &Engine{Resolver: r, Now: func() time.Time { return time.Now().UTC() }}
}

// Expand emits one candidate per departure time of b. Candidates are never
// merged: N times yield N candidates, duplicates included. IDs depend only
// on the contribution, group, position and time, so expanding the same
// bundle twice yields the same IDs.
func (e *Engine) Expand(ctx context.Context, contributionID string, b extraction.Bundle, status Status) ([]Candidate, Skip) {
	origin := e.Resolver.Resolve(ctx, b.Origin)
	if !origin.Resolved() {
		return nil, SkipUnresolvedOrigin
	}
	dest := e.Resolver.Resolve(ctx, b.Destination)
	if !dest.Resolved() {
		return nil, SkipUnresolvedDestination
	}
	if strings.EqualFold(origin.ResolvedName, dest.ResolvedName) {
		return nil, SkipSameEndpoints
	}
	via := strings.TrimSpace(b.Via)
	if locations.IsViaCity(dest.ResolvedName, via) || locations.IsViaCity(b.Destination, via) {
		return nil, SkipViaDestination
	}
	times := b.Times()
	if len(times) == 0 {
		return nil, SkipNoDepartures
	}

	group := GroupID(origin.ResolvedName, dest.ResolvedName, via)
	now := e.Now()
	out := make([]Candidate, 0, len(times))
	for i, t := range times {
		out = append(out, Candidate{
			ID:             candidateID(contributionID, group, i, t),
			ContributionID: contributionID,
			BusNumber:      strings.TrimSpace(b.RouteNumber),
			Origin:         origin.ResolvedName,
			Destination:    dest.ResolvedName,
			DepartureTime:  t,
			Via:            via,
			BusType:        strings.TrimSpace(b.BusType),
			RouteGroupID:   group,
			ScheduleIndex:  i + 1,
			TotalSchedules: len(times),
			Status:         status,
			ProvenanceNote: fmt.Sprintf("schedule %d of %d from contribution %s", i+1, len(times), contributionID),
			CreatedAt:      now,
		})
	}
	return out, SkipNone
}

// Expansion is the outcome of expanding every bundle of one payload.
type Expansion struct {
	Candidates []Candidate
	Expanded   int
	Skipped    map[Skip]int
}

// SkippedTotal is the number of bundles that produced nothing.
func (x Expansion) SkippedTotal() int {
	n := 0
	for _, c := range x.Skipped {
		n += c
	}
	return n
}

// ExpandAll expands bundles in order and tallies skipped ones.
func (e *Engine) ExpandAll(ctx context.Context, contributionID string, bundles []extraction.Bundle, status Status) Expansion {
	x := Expansion{Skipped: map[Skip]int{}}
	for _, b := range bundles {
		cands, skip := e.Expand(ctx, contributionID, b, status)
		if skip != SkipNone {
			x.Skipped[skip]++
			metrics.IncSkippedBundle(string(skip))
			continue
		}
		x.Expanded++
		x.Candidates = append(x.Candidates, cands...)
	}
	return x
}

// GroupID builds ORIGIN-DEST[-VIA] in upper case.
func GroupID(origin, destination, via string) string {
	id := strings.ToUpper(strings.TrimSpace(origin)) + "-" + strings.ToUpper(strings.TrimSpace(destination))
	if v := strings.TrimSpace(via); v != "" {
		id += "-" + strings.ToUpper(v)
	}
	return id
}

func candidateID(contributionID, group string, index int, departure string) string {
	key := contributionID + "|" + group + "|" + strconv.Itoa(index) + "|" + departure
	return uuid.NewSHA1(candidateNamespace, []byte(key)).String()
}
