package rank

import (
	"sort"
	"strings"
)

// CountrySummary aggregates the candidates of one country.
type CountrySummary struct {
	Count        int      `json:"count"`
	TotalSpots   int      `json:"total_spots"`
	AvgMappable  float64  `json:"avg_mappable"`
	AvgCGPA      float64  `json:"avg_cgpa"`
	MinCGPA      float64  `json:"min_cgpa"`
	MaxCGPA      float64  `json:"max_cgpa"`
	Universities []string `json:"universities"`
}

// SummarizeByCountry folds the candidate list into per-country aggregates.
// CGPA statistics consider only positive floors; zero means "not stated"
// and would drag the averages toward fiction.
func SummarizeByCountry(unis []University) map[string]CountrySummary {
	out := make(map[string]CountrySummary)

	for _, u := range unis {
		s := out[u.Country]
		s.Count++
		s.TotalSpots += u.Sem1Spots
		s.Universities = append(s.Universities, u.Name)
		s.AvgMappable += float64(u.MappableCount)
		if u.MinCGPA > 0 {
			if s.MinCGPA == 0 || u.MinCGPA < s.MinCGPA {
				s.MinCGPA = u.MinCGPA
			}
			if u.MinCGPA > s.MaxCGPA {
				s.MaxCGPA = u.MinCGPA
			}
			s.AvgCGPA += u.MinCGPA
		}
		out[u.Country] = s
	}

	for country, s := range out {
		positive := 0
		for _, u := range unis {
			if u.Country == country && u.MinCGPA > 0 {
				positive++
			}
		}
		s.AvgMappable /= float64(s.Count)
		if positive > 0 {
			s.AvgCGPA /= float64(positive)
		}
		sort.Strings(s.Universities)
		out[country] = s
	}
	return out
}

// GroupByCountry splits an already-ranked list by country, preserving the
// rank order inside each country.
func GroupByCountry(unis []University) map[string][]University {
	out := make(map[string][]University)
	for _, u := range unis {
		out[u.Country] = append(out[u.Country], u)
	}
	return out
}

// ModuleAvailability counts, per requested module, how many candidates can
// map it. Modules nobody maps appear with a zero count so the caller sees
// them rather than a missing key.
func ModuleAvailability(unis []University, modules []string) map[string]int {
	out := make(map[string]int, len(modules))
	for _, m := range modules {
		out[strings.ToUpper(m)] = 0
	}
	for _, u := range unis {
		for code := range u.Mappable {
			if _, wanted := out[code]; wanted {
				out[code]++
			}
		}
	}
	return out
}

// CoverageBuckets histograms the candidates by coverage band.
func CoverageBuckets(unis []University) map[string]int {
	out := map[string]int{
		"full":    0,
		"high":    0,
		"partial": 0,
		"low":     0,
	}
	for _, u := range unis {
		switch {
		case u.Coverage >= 100:
			out["full"]++
		case u.Coverage >= 75:
			out["high"]++
		case u.Coverage >= 50:
			out["partial"]++
		default:
			out["low"]++
		}
	}
	return out
}
