package locations

import (
	"sort"
	"strings"
)

var knownCities = []string{
	"CHENNAI", "COIMBATORE", "MADURAI", "TRICHY", "SALEM", "TIRUNELVELI",
	"KANYAKUMARI", "THANJAVUR", "ERODE", "VELLORE", "TIRUPPUR", "KARUR",
	"KUMBAKONAM", "THOOTHUKUDI", "PATTUKKOTTAI", "VIRUDHUNAGAR", "THENI",
	"DINDIGUL", "PUDUKKOTTAI", "NAGERCOIL", "BENGALURU", "TIRUVANNAMALAI",
	"ARIYALUR", "PERAMBALUR", "NAMAKKAL", "KRISHNAGIRI", "DHARMAPURI",
	"HOSUR", "TIRUCHENDUR", "ARANI", "KANCHIPURAM", "RAMANATHAPURAM",
	"RAMESHWARAM", "SIVAKASI", "SIVAGANGA", "CUDDALORE", "VILLUPURAM",
	"TINDIVANAM", "CHIDAMBARAM", "NAGAPATTINAM", "MAYILADUTHURAI",
	"TIRUVARUR", "KARAIKAL", "PUDUCHERRY", "OOTY", "COONOOR", "METTUPALAYAM",
	"POLLACHI", "UDUMALPET", "PALANI", "KODAIKANAL", "TENKASI", "SANKARANKOVIL",
	"KOVILPATTI", "ARUPPUKKOTTAI", "PARAMAKUDI", "MANDAPAM", "PAMBAN",
	"DHANUSHKODI", "RAJAPALAYAM", "SRIVILLIPUTTUR", "MYSURU", "TIRUPATI",
	"THIRUVANANTHAPURAM", "KOCHI", "PALAKKAD",
}

// aliases maps alternate spellings (English and Tamil script) to the
// canonical upper-case name.
var aliases = map[string]string{
	"MADRAS":           "CHENNAI",
	"KOVAI":            "COIMBATORE",
	"TIRUCHIRAPPALLI":  "TRICHY",
	"TIRUCHIRAPALLI":   "TRICHY",
	"TIRUCHI":          "TRICHY",
	"TUTICORIN":        "THOOTHUKUDI",
	"TANJORE":          "THANJAVUR",
	"BANGALORE":        "BENGALURU",
	"NELLAI":           "TIRUNELVELI",
	"KUMARI":           "KANYAKUMARI",
	"RAMESWARAM":       "RAMESHWARAM",
	"PONDICHERRY":      "PUDUCHERRY",
	"PONDY":            "PUDUCHERRY",
	"MYSORE":           "MYSURU",
	"TRIVANDRUM":       "THIRUVANANTHAPURAM",
	"COCHIN":           "KOCHI",
	"THIRUCHENDUR":     "TIRUCHENDUR",
	"சென்னை":           "CHENNAI",
	"மதுரை":            "MADURAI",
	"கோயம்புத்தூர்":    "COIMBATORE",
	"கோவை":             "COIMBATORE",
	"திருச்சி":         "TRICHY",
	"திருச்சிராப்பள்ளி": "TRICHY",
	"சேலம்":            "SALEM",
	"திருநெல்வேலி":     "TIRUNELVELI",
	"நெல்லை":           "TIRUNELVELI",
	"கன்னியாகுமரி":     "KANYAKUMARI",
	"தஞ்சாவூர்":        "THANJAVUR",
	"தஞ்சை":            "THANJAVUR",
	"தூத்துக்குடி":     "THOOTHUKUDI",
	"பெங்களூரு":        "BENGALURU",
	"பெங்களூர்":        "BENGALURU",
	"இராமேஸ்வரம்":      "RAMESHWARAM",
	"ராமேஸ்வரம்":       "RAMESHWARAM",
	"தேனி":             "THENI",
	"திண்டுக்கல்":      "DINDIGUL",
	"ஈரோடு":            "ERODE",
	"கரூர்":            "KARUR",
	"ஓசூர்":            "HOSUR",
	"வேலூர்":           "VELLORE",
}

var knownSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(knownCities))
	for _, c := range knownCities {
		m[c] = struct{}{}
	}
	return m
}()

// Canonical returns the canonical city for a known name or alias.
func Canonical(name string) (string, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if n == "" {
		return "", false
	}
	if _, ok := knownSet[n]; ok {
		return n, true
	}
	if c, ok := aliases[n]; ok {
		return c, true
	}
	if c, ok := aliases[strings.TrimSpace(name)]; ok {
		return c, true
	}
	return "", false
}

// FindCities returns the canonical cities mentioned in text, in order of
// first appearance.
func FindCities(text string) []string {
	upper := strings.ToUpper(text)
	first := map[string]int{}
	note := func(pattern, city string) {
		i := strings.Index(upper, pattern)
		if i < 0 {
			return
		}
		if p, ok := first[city]; !ok || i < p {
			first[city] = i
		}
	}
	for _, c := range knownCities {
		note(c, c)
	}
	for a, c := range aliases {
		note(strings.ToUpper(a), c)
	}
	out := make([]string, 0, len(first))
	for c := range first {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if first[out[i]] != first[out[j]] {
			return first[out[i]] < first[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// KnownCities returns a copy of the built-in city list.
func KnownCities() []string {
	return append([]string(nil), knownCities...)
}
