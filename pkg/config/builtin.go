package config

import "strings"

// Built-in reference data. Unlike tunables these are not exposed for
// runtime mutation; they track what the provider APIs actually return
// and accept.

// stateCodes maps lowercase US state names to the two-letter codes the
// buyer search API requires. Only states plus DC; territories are not
// covered by the provider today.
var stateCodes = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN", "mississippi": "MS",
	"missouri": "MO", "montana": "MT", "nebraska": "NE", "nevada": "NV",
	"new hampshire": "NH", "new jersey": "NJ", "new mexico": "NM", "new york": "NY",
	"north carolina": "NC", "north dakota": "ND", "ohio": "OH", "oklahoma": "OK",
	"oregon": "OR", "pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA", "west virginia": "WV",
	"wisconsin": "WI", "wyoming": "WY", "district of columbia": "DC",
}

// StateCode normalizes a geographic hint to a two-letter state code.
// Accepts "CA", "ca", "California", "california". Unknown names return
// false and are dropped silently by callers.
func StateCode(hint string) (string, bool) {
	h := strings.TrimSpace(hint)
	if len(h) == 2 && isAlpha(h) {
		return strings.ToUpper(h), true
	}
	code, ok := stateCodes[strings.ToLower(h)]
	return code, ok
}

func isAlpha(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return len(s) > 0
}

// buyerTypeEmoji decorates report headers and snapshot cards. Keys must
// match the exact buyer type strings the provider returns; unknown
// types render without an emoji.
var buyerTypeEmoji = map[string]string{
	"HigherEducation":  "\U0001F3DB️",
	"SchoolDistrict":   "\U0001F3EB",
	"City":             "\U0001F3D9️",
	"County":           "\U0001F3E2",
	"StateAgency":      "\U0001F3DB️",
	"School":           "\U0001F3EB",
	"PoliceDepartment": "\U0001F46E",
	"FireDepartment":   "\U0001F692",
	"Library":          "\U0001F4DA",
	"SpecialDistrict":  "\U0001F3E2",
}

// buyerTypeLabel gives human-readable names for the same keys. Used in
// the exec summary, CTA, and secondary cards.
var buyerTypeLabel = map[string]string{
	"HigherEducation":  "Higher Education",
	"SchoolDistrict":   "School District",
	"City":             "City",
	"County":           "County",
	"StateAgency":      "State Agency",
	"School":           "School",
	"PoliceDepartment": "Police Department",
	"FireDepartment":   "Fire Department",
	"Library":          "Library",
	"SpecialDistrict":  "Special District",
}

// BuyerTypeEmoji returns the emoji for a buyer type, or "" if unmapped.
func BuyerTypeEmoji(buyerType string) string {
	return buyerTypeEmoji[buyerType]
}

// BuyerTypeLabel returns the display label for a buyer type, falling
// back to the raw type string.
func BuyerTypeLabel(buyerType string) string {
	if label, ok := buyerTypeLabel[buyerType]; ok {
		return label
	}
	return buyerType
}

// stopWords are skipped when extracting significant keywords from the
// ideal buyer profile for name-contains filtering and scoring.
var stopWords = map[string]struct{}{
	"with": {}, "that": {}, "this": {}, "from": {}, "their": {}, "which": {},
	"have": {}, "been": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"about": {}, "into": {}, "over": {}, "under": {}, "between": {}, "through": {},
	"after": {}, "before": {}, "during": {}, "without": {}, "within": {},
	"along": {}, "across": {}, "against": {}, "toward": {}, "upon": {},
	"need": {}, "needing": {}, "seeking": {}, "looking": {}, "using": {},
	"based": {}, "large": {}, "small": {},
}

// SignificantWords returns the words of text longer than three chars
// that are not stop words, preserving order.
func SignificantWords(text string) []string {
	var out []string
	for _, w := range strings.Fields(text) {
		if len(w) <= 3 {
			continue
		}
		if _, skip := stopWords[strings.ToLower(w)]; skip {
			continue
		}
		out = append(out, w)
	}
	return out
}
