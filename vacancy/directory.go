package vacancy

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"

	"gemscout/normalize"
)

// Confidence qualifies how an enrichment lookup found its record. Fuzzy
// matches are best-effort and can mis-attribute similarly named institutions
// in the same country; Low matches are surfaced, never silently treated as
// authoritative.
type Confidence int

const (
	ConfidenceNone Confidence = iota
	ConfidenceLow
	ConfidenceHigh
	ConfidenceExact
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceExact:
		return "exact"
	case ConfidenceHigh:
		return "high"
	case ConfidenceLow:
		return "low"
	default:
		return "none"
	}
}

// Enrichment is the vacancy data attached to a scraped university.
type Enrichment struct {
	Sem1Spots  int        `json:"sem1_spots"`
	MinCGPA    float64    `json:"min_cgpa"`
	Remarks    string     `json:"remarks"`
	Confidence Confidence `json:"-"`
}

// Directory looks up vacancy data by university name and country. It is
// constructed once at startup from the extracted PDF records and passed by
// reference; it holds no hidden global state and is safe for concurrent
// reads after construction.
type Directory struct {
	byKey  map[string]Record
	byCode map[string]Record
	logger *slog.Logger
}

// NewDirectory indexes records for lookup. Records are indexed both by
// university code and by a compressed name+country key.
func NewDirectory(records []Record, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{
		byKey:  make(map[string]Record, len(records)),
		byCode: make(map[string]Record, len(records)),
		logger: logger,
	}
	for _, rec := range records {
		if rec.UniversityCode != "" {
			d.byCode[rec.Key()] = rec
		}
		d.byKey[lookupKey(rec.UniversityName, rec.Country)] = rec
	}
	return d
}

// Len returns the number of name-indexed records.
func (d *Directory) Len() int { return len(d.byKey) }

// Countries returns the number of distinct countries indexed.
func (d *Directory) Countries() int {
	seen := make(map[string]bool)
	for _, rec := range d.byKey {
		seen[strings.ToLower(rec.Country)] = true
	}
	return len(seen)
}

// Lookup returns the vacancy enrichment for a university. Exact normalized
// key match first, then a fuzzy fallback. A miss returns zero values with
// ConfidenceNone, never an error.
func (d *Directory) Lookup(universityName, country string) Enrichment {
	if rec, ok := d.byKey[lookupKey(universityName, country)]; ok {
		return enrichmentFrom(rec, ConfidenceExact)
	}

	rec, score, ok := d.fuzzyMatch(universityName, country)
	if !ok {
		return Enrichment{Confidence: ConfidenceNone}
	}

	conf := ConfidenceLow
	if score >= 5 {
		conf = ConfidenceHigh
	}
	d.logger.Debug("vacancy: fuzzy enrichment match",
		"query", universityName, "matched", rec.UniversityName,
		"score", score, "confidence", conf.String())
	return enrichmentFrom(rec, conf)
}

func enrichmentFrom(rec Record, conf Confidence) Enrichment {
	return Enrichment{
		Sem1Spots:  rec.Sem1Spots,
		MinCGPA:    rec.MinCGPA,
		Remarks:    rec.Remarks,
		Confidence: conf,
	}
}

// minFuzzyScore is the cutoff below which a candidate is not considered a
// match at all.
const minFuzzyScore = 2

// fuzzyMatch scores candidates by keyword and substring overlap, restricted
// to the query's country (accounting for aliases). Ties on score are broken
// by Levenshtein distance between the names.
func (d *Directory) fuzzyMatch(universityName, country string) (Record, int, bool) {
	query := strings.ToLower(universityName)

	var keywords []string
	for _, w := range strings.Fields(query) {
		if len(w) > 3 {
			keywords = append(keywords, w)
		}
	}

	var (
		best      Record
		bestScore int
		bestDist  int
		found     bool
	)

	for _, rec := range d.byKey {
		if country != "" && !normalize.SameCountry(rec.Country, country) {
			continue
		}

		candidate := strings.ToLower(rec.UniversityName)
		score := 0
		for _, kw := range keywords {
			if strings.Contains(candidate, kw) {
				score++
			}
		}
		if strings.Contains(candidate, query) || strings.Contains(query, candidate) {
			score += 3
		}
		if score < minFuzzyScore {
			continue
		}

		dist := matchr.Levenshtein(query, candidate)
		if !found || score > bestScore || (score == bestScore && dist < bestDist) {
			best = rec
			bestScore = score
			bestDist = dist
			found = true
		}
	}

	return best, bestScore, found
}

var nonWord = regexp.MustCompile(`[^\w\s]`)

// lookupKey compresses a name+country pair into the directory's index key.
// Deliberately more aggressive than normalize.Normalize: it also strips
// "university" noise words so portal and PDF spellings collide.
func lookupKey(name, country string) string {
	n := strings.ToLower(name)
	n = strings.Join(strings.Fields(n), " ")
	n = nonWord.ReplaceAllString(n, "")
	n = strings.ReplaceAll(n, "the ", "")
	n = strings.ReplaceAll(n, " university", "")
	n = strings.ReplaceAll(n, "university of ", "")
	n = strings.ReplaceAll(n, " of ", " ")
	n = strings.TrimSpace(n)
	if country != "" {
		n = strings.ToLower(country) + "_" + n
	}
	return n
}
