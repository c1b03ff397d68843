package extraction

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Kind identifies which payload shape a backend produced.
type Kind string

const (
	KindEmpty         Kind = "empty"
	KindGroupedRoutes Kind = "grouped_routes"
	KindFlatRoutes    Kind = "flat_routes"
	KindLegacyRoutes  Kind = "legacy_routes"
)

// Bundle is one extracted route description: a single origin/destination
// pair that may carry many departure times.
type Bundle struct {
	Origin         string   `json:"origin"`
	Destination    string   `json:"destination"`
	Via            string   `json:"via,omitempty"`
	RouteNumber    string   `json:"routeNumber,omitempty"`
	BusType        string   `json:"busType,omitempty"`
	DepartureTime  string   `json:"departureTime,omitempty"`
	DepartureTimes []string `json:"departureTimes,omitempty"`
}

// Times returns the departure-time list, falling back to the single
// DepartureTime field. Blank entries are dropped.
func (b Bundle) Times() []string {
	var out []string
	for _, t := range b.DepartureTimes {
		if s := strings.TrimSpace(t); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		if s := strings.TrimSpace(b.DepartureTime); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Payload is the decoded schedule data from one extraction. Exactly one of
// the shape fields is set, according to Kind.
type Payload struct {
	Kind    Kind
	Grouped *GroupedRoutes
	Flat    *FlatRoutes
	Legacy  *LegacyRoutes
}

// GroupedRoutes is the board-style shape: one origin with routes grouped by destination.
type GroupedRoutes struct {
	Origin        string
	ByDestination map[string][]RouteEntry
}

// FlatRoutes is one origin with a flat list of routes.
type FlatRoutes struct {
	Origin string
	Routes []RouteEntry
}

// LegacyRoutes is the older per-route shape where each entry carries both ends.
type LegacyRoutes struct {
	Routes []LegacyRoute
}

// RouteEntry is a route leaving the payload's origin.
type RouteEntry struct {
	From           string   `json:"fromLocation,omitempty"`
	Destination    string   `json:"destination,omitempty"`
	To             string   `json:"toLocation,omitempty"`
	RouteNumber    string   `json:"routeNumber,omitempty"`
	BusNumber      string   `json:"busNumber,omitempty"`
	Via            Via      `json:"via,omitempty"`
	DepartureTimes []string `json:"departureTimes,omitempty"`
	DepartureTime  string   `json:"departureTime,omitempty"`
	BusType        string   `json:"busType,omitempty"`
}

// LegacyRoute is one entry of the legacy multipleRoutes list.
type LegacyRoute struct {
	From          string   `json:"fromLocation"`
	To            string   `json:"toLocation"`
	BusNumber     string   `json:"busNumber,omitempty"`
	DepartureTime string   `json:"departureTime,omitempty"`
	Timings       []string `json:"timings,omitempty"`
	DepartureList []string `json:"departureTimes,omitempty"`
	Via           Via      `json:"via,omitempty"`
	BusType       string   `json:"busType,omitempty"`
}

// Via accepts either a string ("Salem, Trichy") or an array of stops.
type Via string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Via) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Via(strings.TrimSpace(s))
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return eris.Wrap(err, "via: expected string or string array")
	}
	parts := make([]string, 0, len(list))
	for _, p := range list {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	*v = Via(strings.Join(parts, ", "))
	return nil
}

// Bundles flattens the payload into route bundles. Grouped destinations are
// visited in sorted order so expansion is deterministic.
func (p Payload) Bundles() []Bundle {
	switch p.Kind {
	case KindGroupedRoutes:
		if p.Grouped == nil {
			return nil
		}
		dests := make([]string, 0, len(p.Grouped.ByDestination))
		for d := range p.Grouped.ByDestination {
			dests = append(dests, d)
		}
		sort.Strings(dests)
		var out []Bundle
		for _, d := range dests {
			for _, r := range p.Grouped.ByDestination[d] {
				b := r.bundle(p.Grouped.Origin)
				if strings.TrimSpace(b.Destination) == "" {
					b.Destination = d
				}
				out = append(out, b)
			}
		}
		return out
	case KindFlatRoutes:
		if p.Flat == nil {
			return nil
		}
		out := make([]Bundle, 0, len(p.Flat.Routes))
		for _, r := range p.Flat.Routes {
			out = append(out, r.bundle(p.Flat.Origin))
		}
		return out
	case KindLegacyRoutes:
		if p.Legacy == nil {
			return nil
		}
		out := make([]Bundle, 0, len(p.Legacy.Routes))
		for _, r := range p.Legacy.Routes {
			times := r.DepartureList
			if len(times) == 0 {
				times = r.Timings
			}
			out = append(out, Bundle{
				Origin:         r.From,
				Destination:    r.To,
				Via:            string(r.Via),
				RouteNumber:    r.BusNumber,
				BusType:        r.BusType,
				DepartureTime:  r.DepartureTime,
				DepartureTimes: times,
			})
		}
		return out
	default:
		return nil
	}
}

// IsEmpty reports whether the payload carries no route bundles.
func (p Payload) IsEmpty() bool {
	return len(p.Bundles()) == 0
}

func (r RouteEntry) bundle(origin string) Bundle {
	from := strings.TrimSpace(r.From)
	if from == "" {
		from = origin
	}
	dest := r.Destination
	if strings.TrimSpace(dest) == "" {
		dest = r.To
	}
	number := r.RouteNumber
	if strings.TrimSpace(number) == "" {
		number = r.BusNumber
	}
	return Bundle{
		Origin:         from,
		Destination:    dest,
		Via:            string(r.Via),
		RouteNumber:    number,
		BusType:        r.BusType,
		DepartureTime:  r.DepartureTime,
		DepartureTimes: r.DepartureTimes,
	}
}

type rawPayload struct {
	Origin              string                  `json:"origin"`
	BoardLocation       string                  `json:"boardLocation"`
	FromLocation        string                  `json:"fromLocation"`
	ToLocation          string                  `json:"toLocation"`
	BusNumber           string                  `json:"busNumber"`
	RouteNumber         string                  `json:"routeNumber"`
	DepartureTime       string                  `json:"departureTime"`
	DepartureTimes      []string                `json:"departureTimes"`
	Via                 Via                     `json:"via"`
	RoutesByDestination map[string][]RouteEntry `json:"routesByDestination"`
	Routes              []RouteEntry            `json:"routes"`
	MultipleRoutes      []LegacyRoute           `json:"multipleRoutes"`
	Confidence          *float64                `json:"confidence"`
}

// DecodePayload resolves a backend's JSON output into one payload shape.
// It also returns the backend-reported confidence, if any.
func DecodePayload(raw []byte) (Payload, *float64, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return Payload{Kind: KindEmpty}, nil, nil
	}
	var rp rawPayload
	if err := json.Unmarshal(raw, &rp); err != nil {
		return Payload{}, nil, eris.Wrap(err, "decode extraction payload")
	}

	origin := strings.TrimSpace(rp.Origin)
	if origin == "" {
		origin = strings.TrimSpace(rp.BoardLocation)
	}
	if origin == "" {
		origin = strings.TrimSpace(rp.FromLocation)
	}

	switch {
	case len(rp.RoutesByDestination) > 0:
		return Payload{Kind: KindGroupedRoutes, Grouped: &GroupedRoutes{Origin: origin, ByDestination: rp.RoutesByDestination}}, rp.Confidence, nil
	case len(rp.Routes) > 0:
		return Payload{Kind: KindFlatRoutes, Flat: &FlatRoutes{Origin: origin, Routes: rp.Routes}}, rp.Confidence, nil
	case len(rp.MultipleRoutes) > 0:
		return Payload{Kind: KindLegacyRoutes, Legacy: &LegacyRoutes{Routes: rp.MultipleRoutes}}, rp.Confidence, nil
	case strings.TrimSpace(rp.FromLocation) != "" && strings.TrimSpace(rp.ToLocation) != "":
		number := rp.BusNumber
		if number == "" {
			number = rp.RouteNumber
		}
		return Payload{Kind: KindLegacyRoutes, Legacy: &LegacyRoutes{Routes: []LegacyRoute{{
			From:          rp.FromLocation,
			To:            rp.ToLocation,
			BusNumber:     number,
			DepartureTime: rp.DepartureTime,
			DepartureList: rp.DepartureTimes,
			Via:           rp.Via,
		}}}}, rp.Confidence, nil
	default:
		return Payload{Kind: KindEmpty}, rp.Confidence, nil
	}
}

// FromBundles builds a flat payload from bundles; used by the OCR backend,
// which derives bundles directly from text.
func FromBundles(origin string, bundles []Bundle) Payload {
	if len(bundles) == 0 {
		return Payload{Kind: KindEmpty}
	}
	routes := make([]RouteEntry, 0, len(bundles))
	for _, b := range bundles {
		routes = append(routes, RouteEntry{
			From:           b.Origin,
			Destination:    b.Destination,
			RouteNumber:    b.RouteNumber,
			Via:            Via(b.Via),
			DepartureTimes: b.DepartureTimes,
			DepartureTime:  b.DepartureTime,
			BusType:        b.BusType,
		})
	}
	return Payload{Kind: KindFlatRoutes, Flat: &FlatRoutes{Origin: origin, Routes: routes}}
}

// Summary is a compact description of a payload for status polling.
type Summary struct {
	Kind         Kind     `json:"kind"`
	Bundles      int      `json:"bundles"`
	Departures   int      `json:"departures"`
	Destinations []string `json:"destinations,omitempty"`
}

// Summarize counts bundles, departures and distinct destinations.
func (p Payload) Summarize() Summary {
	s := Summary{Kind: p.Kind}
	seen := map[string]bool{}
	for _, b := range p.Bundles() {
		s.Bundles++
		s.Departures += len(b.Times())
		d := strings.ToUpper(strings.TrimSpace(b.Destination))
		if d != "" && !seen[d] {
			seen[d] = true
			s.Destinations = append(s.Destinations, d)
		}
	}
	return s
}
