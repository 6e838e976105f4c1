// Package rank reconciles vacancy groups with scraped module mappings into
// integrated candidate records, then filters, orders, and scores them.
package rank

import (
	"math"
	"sort"
	"strings"

	"gemscout/scrape"
	"gemscout/vacancy"
)

// University is one candidate destination with both sides of the
// reconciliation attached: vacancy facts from the PDF and module coverage
// from the portal.
type University struct {
	ID             string                      `json:"id"`
	Name           string                      `json:"name"`
	Country        string                      `json:"country"`
	Sem1Spots      int                         `json:"sem1_spots"`
	MinCGPA        float64                     `json:"min_cgpa"`
	Remarks        string                      `json:"remarks,omitempty"`
	VariationCount int                         `json:"variation_count"`
	Mappable       map[string][]scrape.Mapping `json:"mappable_modules"`
	Unmappable     []string                    `json:"unmappable_modules"`
	MappableCount  int                         `json:"mappable_count"`
	Coverage       float64                     `json:"coverage_score"`
	Rank           int                         `json:"rank,omitempty"`
	Scores         *ScoreBreakdown             `json:"score_breakdown,omitempty"`
}

// ScoreBreakdown is the weighted composite score: module coverage carries
// 40 points, vacancy spots 30, and the CGPA floor 30 (lower floor scores
// higher).
type ScoreBreakdown struct {
	Mappable float64 `json:"mappable_score"`
	Spots    float64 `json:"spots_score"`
	CGPA     float64 `json:"cgpa_score"`
	Total    float64 `json:"total_score"`
}

// Combine joins vacancy groups with scraped mapping data keyed by group ID.
// requested is the student's module list; coverage is the share of it that
// mapped. Groups with no mapping data integrate with zero coverage rather
// than dropping out, so the caller can still see them in the full listing.
func Combine(groups map[string]vacancy.Group, data map[string]map[string][]scrape.Mapping, requested []string) []University {
	wanted := make([]string, 0, len(requested))
	for _, m := range requested {
		wanted = append(wanted, strings.ToUpper(m))
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]University, 0, len(ids))
	for _, id := range ids {
		g := groups[id]
		u := University{
			ID:             id,
			Name:           g.UniversityName,
			Country:        g.Country,
			Sem1Spots:      g.Sem1Spots,
			MinCGPA:        g.MinCGPA,
			Remarks:        g.Remarks,
			VariationCount: g.VariationCount,
			Mappable:       make(map[string][]scrape.Mapping),
		}

		byModule := data[id]
		for _, code := range wanted {
			if ms := byModule[code]; len(ms) > 0 {
				u.Mappable[code] = ms
			} else {
				u.Unmappable = append(u.Unmappable, code)
			}
		}
		u.MappableCount = len(u.Mappable)
		if len(wanted) > 0 {
			u.Coverage = float64(u.MappableCount) / float64(len(wanted)) * 100
		}
		out = append(out, u)
	}
	return out
}

// FilterAndRank drops universities below the mappable-module floor, orders
// the rest (country A-Z, then mappable count high to low, then spots high
// to low, then CGPA floor low to high, then name A-Z), and assigns 1-based
// ranks.
func FilterAndRank(unis []University, minMappable int) []University {
	kept := make([]University, 0, len(unis))
	for _, u := range unis {
		if u.MappableCount >= minMappable {
			kept = append(kept, u)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.Country != b.Country {
			return a.Country < b.Country
		}
		if a.MappableCount != b.MappableCount {
			return a.MappableCount > b.MappableCount
		}
		if a.Sem1Spots != b.Sem1Spots {
			return a.Sem1Spots > b.Sem1Spots
		}
		if a.MinCGPA != b.MinCGPA {
			return a.MinCGPA < b.MinCGPA
		}
		return a.Name < b.Name
	})

	for i := range kept {
		kept[i].Rank = i + 1
	}
	return kept
}

// TopN orders by desirability alone (mappable count, spots, CGPA floor,
// name) with no country grouping, and returns the first n.
func TopN(unis []University, n int) []University {
	ranked := append([]University(nil), unis...)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.MappableCount != b.MappableCount {
			return a.MappableCount > b.MappableCount
		}
		if a.Sem1Spots != b.Sem1Spots {
			return a.Sem1Spots > b.Sem1Spots
		}
		if a.MinCGPA != b.MinCGPA {
			return a.MinCGPA < b.MinCGPA
		}
		return a.Name < b.Name
	})
	if n < len(ranked) {
		ranked = ranked[:n]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

// maxCGPA is the grading scale ceiling used to normalize CGPA scores.
const maxCGPA = 5.0

// Score attaches weighted score breakdowns, normalizing module and spot
// components against the observed maxima. A zero CGPA floor means "not
// stated" and scores as unconstrained, i.e. the full 30 points.
func Score(unis []University) {
	maxMappable, maxSpots := 6, 10
	for _, u := range unis {
		if u.MappableCount > maxMappable {
			maxMappable = u.MappableCount
		}
		if u.Sem1Spots > maxSpots {
			maxSpots = u.Sem1Spots
		}
	}

	for i := range unis {
		u := &unis[i]
		sb := ScoreBreakdown{
			Mappable: float64(u.MappableCount) / float64(maxMappable) * 40,
			Spots:    float64(u.Sem1Spots) / float64(maxSpots) * 30,
			CGPA:     30,
		}
		if u.MinCGPA > 0 {
			sb.CGPA = (maxCGPA - u.MinCGPA) / maxCGPA * 30
		}
		sb.Total = round2(sb.Mappable + sb.Spots + sb.CGPA)
		sb.Mappable = round2(sb.Mappable)
		sb.Spots = round2(sb.Spots)
		sb.CGPA = round2(sb.CGPA)
		u.Scores = &sb
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
