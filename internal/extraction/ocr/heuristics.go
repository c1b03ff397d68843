package ocr

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"schedule-backend/internal/extraction"
	"schedule-backend/internal/locations"
)

var (
	timeRe        = regexp.MustCompile(`(\d{1,2})[:.](\d{2})`)
	routeStartRe  = regexp.MustCompile(`^\s*(\d{1,4}[A-Z]{0,3})(?:\s+|$)`)
	routeDigitsRe = regexp.MustCompile(`^\d+[A-Z]*$`)
	routeAlphaRe  = regexp.MustCompile(`^[A-Z]+\d+[A-Z]*$`)
	timingsAtRe   = regexp.MustCompile(`(?i)BUS\s+TIMINGS?\s+(?:AT|@)\s+([A-Z]+)`)
	wordRe        = regexp.MustCompile(`\p{L}[\p{L}\p{M}]{3,}`)
	busTypeRe     = regexp.MustCompile(`\b(SUPER DELUXE|ULTRA DELUXE|DELUXE|EXPRESS|ORDINARY|SLEEPER|SEATER|NON AC|AC|VOLVO)\b`)

	routeNoise = regexp.MustCompile(`ORDINARY|SEATER|SUPER|DELUXE|EXPRESS|VOLVO|LUXURY|SLEEPER|FAST|3X2|2X2|2X3|3X3`)
)

var busStandMarkers = []string{"BUS STAND", "BUS STATION", "BUSSTAND", "பேருந்து நிலையம்", "பேருந்து"}

// Parsed is what the text heuristics recovered from one OCR pass.
type Parsed struct {
	Origin  string
	Bundles []extraction.Bundle
}

// HasRouteNumber reports whether any bundle carries a route number.
func (p Parsed) HasRouteNumber() bool {
	for _, b := range p.Bundles {
		if b.RouteNumber != "" {
			return true
		}
	}
	return false
}

// HasDestination reports whether any bundle names a destination.
func (p Parsed) HasDestination() bool {
	for _, b := range p.Bundles {
		if b.Destination != "" {
			return true
		}
	}
	return false
}

// HasTimes reports whether any departure time was found.
func (p Parsed) HasTimes() bool {
	for _, b := range p.Bundles {
		if len(b.DepartureTimes) > 0 {
			return true
		}
	}
	return false
}

// NormalizeTime formats hour and minute captures ("6","05" or "18","30") as
// HH:MM. ok is false for out-of-range values.
func NormalizeTime(hours, minutes string) (string, bool) {
	h, err := strconv.Atoi(hours)
	if err != nil {
		return "", false
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return "", false
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", h, m), true
}

// ExtractTimes returns the valid times in s, normalized and in order of appearance.
func ExtractTimes(s string) []string {
	var out []string
	for _, m := range timeRe.FindAllStringSubmatch(s, -1) {
		if t, ok := NormalizeTime(m[1], m[2]); ok {
			out = append(out, t)
		}
	}
	return out
}

// IsValidRouteNumber accepts tokens like 166UD, 12A or UD166 and rejects bus
// classes, city names and long descriptions.
func IsValidRouteNumber(s string) bool {
	cleaned := strings.ToUpper(strings.TrimSpace(s))
	if cleaned == "" || len(cleaned) > 10 {
		return false
	}
	if routeNoise.MatchString(cleaned) {
		return false
	}
	if _, ok := locations.Canonical(cleaned); ok {
		return false
	}
	return routeDigitsRe.MatchString(cleaned) || routeAlphaRe.MatchString(cleaned)
}

// ParseText recovers an origin and route bundles from raw board text. Two
// layouts are understood: destination-first boards under an origin header
// ("DESTINATION VIA... TIMES") and from/to rows ("FROM TO [VIA] TIMES").
// Lines holding only times attach to the most recent route.
func ParseText(text, hint string) Parsed {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	headerIdx := tableHeaderIndex(lines)
	origin := detectOrigin(text, lines, headerIdx)
	if origin == "" && hint != "" {
		if cities := locations.FindCities(hint); len(cities) > 0 {
			origin = cities[0]
		}
	}

	var bundles []*extraction.Bundle
	index := map[string]*extraction.Bundle{}
	var last *extraction.Bundle

	for i, raw := range lines {
		upper := strings.ToUpper(strings.TrimSpace(raw))
		if upper == "" || i <= headerIdx || isOriginLine(upper) {
			continue
		}
		times := ExtractTimes(upper)
		rest := strings.TrimSpace(timeRe.ReplaceAllString(upper, " "))

		route := ""
		if m := routeStartRe.FindStringSubmatch(rest); m != nil && IsValidRouteNumber(m[1]) {
			route = m[1]
			rest = strings.TrimSpace(rest[len(m[0]):])
		}
		busType := ""
		if m := busTypeRe.FindString(rest); m != "" {
			busType = m
		}

		words := locationWords(rest)
		if len(words) == 0 {
			if last != nil && len(times) > 0 {
				last.DepartureTimes = append(last.DepartureTimes, times...)
			}
			continue
		}

		var from, dest string
		var via []string
		switch {
		case origin != "":
			from, dest, via = origin, words[0], words[1:]
			if strings.EqualFold(dest, origin) && len(words) > 1 {
				dest, via = words[1], words[2:]
			}
		case len(words) >= 2:
			from, dest, via = words[0], words[1], words[2:]
		default:
			dest = words[0]
		}

		key := from + "|" + dest + "|" + route
		b, ok := index[key]
		if !ok {
			b = &extraction.Bundle{Origin: from, Destination: dest, RouteNumber: route}
			index[key] = b
			bundles = append(bundles, b)
		}
		if b.Via == "" && len(via) > 0 {
			b.Via = strings.Join(via, ", ")
		}
		if b.BusType == "" {
			b.BusType = busType
		}
		b.DepartureTimes = append(b.DepartureTimes, times...)
		last = b
	}

	out := make([]extraction.Bundle, 0, len(bundles))
	for _, b := range bundles {
		b.DepartureTimes = sortUnique(b.DepartureTimes)
		out = append(out, *b)
	}
	return Parsed{Origin: origin, Bundles: out}
}

// TextConfidence scores raw OCR text: length, recovered route fields, times
// and schedule vocabulary each add to the score, capped at 1.
func TextConfidence(text string, p Parsed) float64 {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	c := 0.0
	n := len([]rune(text))
	if n > 20 {
		c += 0.2
	}
	if n > 50 {
		c += 0.1
	}
	if p.HasRouteNumber() {
		c += 0.2
	}
	if p.Origin != "" || hasBundleOrigin(p) {
		c += 0.2
	}
	if p.HasDestination() {
		c += 0.2
	}
	if p.HasTimes() {
		c += 0.1
	}
	lower := strings.ToLower(text)
	for _, kw := range []string{"bus", "route", "schedule", "time"} {
		if strings.Contains(lower, kw) {
			c += 0.1
			break
		}
	}
	if c > 1 {
		c = 1
	}
	return c
}

func hasBundleOrigin(p Parsed) bool {
	for _, b := range p.Bundles {
		if b.Origin != "" {
			return true
		}
	}
	return false
}

func tableHeaderIndex(lines []string) int {
	for i, l := range lines {
		u := strings.ToUpper(l)
		if (strings.Contains(u, "ROUTE") && strings.Contains(u, "DESTINATION")) ||
			(strings.Contains(u, "DESTINATION") && strings.Contains(u, "VIA") && strings.Contains(u, "TIME")) {
			return i
		}
	}
	return -1
}

func detectOrigin(text string, lines []string, headerIdx int) string {
	if m := timingsAtRe.FindStringSubmatch(text); m != nil {
		candidate := strings.ToUpper(m[1])
		if c, ok := locations.Canonical(candidate); ok {
			return c
		}
		if len(candidate) >= 4 && !locations.IsKeyword(candidate) {
			return candidate
		}
	}
	if headerIdx > 0 {
		if cities := locations.FindCities(strings.Join(lines[:headerIdx], "\n")); len(cities) > 0 {
			return cities[0]
		}
	}
	for _, l := range lines {
		if isOriginLine(strings.ToUpper(l)) {
			if cities := locations.FindCities(l); len(cities) > 0 {
				return cities[0]
			}
		}
	}
	return ""
}

func isOriginLine(upper string) bool {
	if timingsAtRe.MatchString(upper) {
		return true
	}
	for _, m := range busStandMarkers {
		if strings.Contains(upper, m) {
			return true
		}
	}
	return false
}

func locationWords(s string) []string {
	var out []string
	for _, w := range wordRe.FindAllString(s, -1) {
		if locations.IsKeyword(w) || busTypeRe.MatchString(w) {
			continue
		}
		if c, ok := locations.Canonical(w); ok {
			w = c
		}
		out = append(out, w)
	}
	return out
}

func sortUnique(times []string) []string {
	if len(times) == 0 {
		return nil
	}
	seen := map[string]bool{}
	out := make([]string, 0, len(times))
	for _, t := range times {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}
