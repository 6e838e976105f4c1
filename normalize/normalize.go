// Package normalize canonicalizes institution and country names so records
// from different data sources referring to the same institution collide to
// one key. Raw names must never be compared directly for joins.
package normalize

import (
	"regexp"
	"strings"
)

// abbreviations maps common short forms to their expansions. Order matters:
// dotted forms are tried before bare ones so "univ." is consumed whole.
var abbreviations = []struct {
	pattern *regexp.Regexp
	full    string
}{
	{regexp.MustCompile(`\buniv\.`), "university"},
	{regexp.MustCompile(`\buniv\b`), "university"},
	{regexp.MustCompile(`\bcoll\.`), "college"},
	{regexp.MustCompile(`\bcoll\b`), "college"},
	{regexp.MustCompile(`\binst\.`), "institute"},
	{regexp.MustCompile(`\binst\b`), "institute"},
	{regexp.MustCompile(`\btech\.`), "technology"},
	{regexp.MustCompile(`\btech\b`), "technology"},
	{regexp.MustCompile(`\bu\.`), "university"},
	{regexp.MustCompile(`\buc\b`), "university college"},
	{regexp.MustCompile(`\buit\b`), "university"},
}

// removePatterns strip campus qualifiers that vary between data sources.
var removePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\([^)]*campus[^)]*\)`),
	regexp.MustCompile(`\([^)]*\)`),
	regexp.MustCompile(`\s*-\s*main\s*campus`),
	regexp.MustCompile(`\s*-\s*.*\s*campus`),
}

var (
	leadingThe = regexp.MustCompile(`^the\s+`)
	multiSpace = regexp.MustCompile(`\s+`)
	dashes     = regexp.MustCompile(`\s*-\s*`)
)

// Normalize converts an institution name to its canonical matching form.
// Deterministic, pure, and idempotent. Steps, in order: lowercase, strip a
// leading "the ", remove parenthesized qualifiers and campus suffixes,
// expand abbreviations on word boundaries, collapse whitespace, convert
// remaining dashes to spaces.
func Normalize(name string) string {
	if name == "" {
		return ""
	}

	n := strings.ToLower(strings.TrimSpace(name))
	n = leadingThe.ReplaceAllString(n, "")

	for _, p := range removePatterns {
		n = p.ReplaceAllString(n, "")
	}

	for _, a := range abbreviations {
		n = a.pattern.ReplaceAllString(n, a.full)
	}

	n = strings.TrimSpace(multiSpace.ReplaceAllString(n, " "))
	n = dashes.ReplaceAllString(n, " ")

	return n
}

// BaseName returns the grouping key for a name. Today it is an alias for
// Normalize; it exists as a separate entry point because grouping may later
// strip trailing location specifiers that the join key keeps.
func BaseName(name string) string {
	return Normalize(name)
}

// countryAliases lists alternate spellings the portal and the vacancy list
// disagree on. Symmetric: both directions are present.
var countryAliases = map[string]string{
	"uk":                       "united kingdom",
	"united kingdom":           "uk",
	"usa":                      "united states",
	"united states":            "usa",
	"united states of america": "usa",
	"turkiye":                  "turkey",
	"turkey":                   "turkiye",
	"south korea":              "korea",
	"korea":                    "south korea",
	"republic of korea":        "korea",
	"czech republic":           "czechia",
	"czechia":                  "czech republic",
	"hong kong sar":            "hong kong",
	"hong kong":                "hong kong sar",
}

// CountryVariants returns the lowercase set of names a country may appear
// under across data sources, including the input itself.
func CountryVariants(country string) []string {
	c := strings.ToLower(strings.TrimSpace(country))
	if c == "" {
		return nil
	}
	variants := []string{c}
	if alias, ok := countryAliases[c]; ok && alias != c {
		variants = append(variants, alias)
	}
	return variants
}

// SameCountry reports whether two country names refer to the same country,
// accounting for known aliases.
func SameCountry(a, b string) bool {
	for _, va := range CountryVariants(a) {
		for _, vb := range CountryVariants(b) {
			if va == vb {
				return true
			}
		}
	}
	return false
}
