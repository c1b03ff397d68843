package locations

import "strings"

// keywords are board vocabulary that OCR often picks up in location columns.
// They are never locations regardless of length.
var keywords = map[string]struct{}{
	"EXPRESS": {}, "AC": {}, "NON AC": {}, "NONAC": {}, "SEATER": {}, "SLEEPER": {}, "VIA": {},
	"FARE": {}, "ORDINARY": {}, "SUPER": {}, "DELUXE": {}, "FAST": {}, "ROUTE": {}, "TIME": {},
	"TIMING": {}, "TIMINGS": {}, "DESTINATION": {}, "DEPARTURE": {}, "ARRIVAL": {}, "VOLVO": {},
	"LUXURY": {}, "BUS": {}, "BUSSTAND": {}, "STAND": {}, "STATION": {}, "TERMINAL": {},
	"TRANSPORT": {}, "CORPORATION": {}, "TNSTC": {}, "KSRTC": {}, "SETC": {}, "SCHEDULE": {},
	"BOARD": {}, "PLATFORM": {}, "TO": {}, "FROM": {},
}

// IsKeyword reports whether s (any case, any surrounding space) is a
// non-location keyword.
func IsKeyword(s string) bool {
	n := strings.Join(strings.Fields(strings.ToUpper(s)), " ")
	if n == "" {
		return false
	}
	_, ok := keywords[n]
	return ok
}
