package vacancy

import "strings"

// FilterOptions narrow the extracted records to those a student can apply to.
type FilterOptions struct {
	// Countries restricts to these country names (exact match against the
	// PDF's own spelling). Empty means no country filter.
	Countries []string

	// College keeps only records whose eligible-colleges field contains this
	// token (case-insensitive). The literal token "All" in the field is a
	// wildcard matching every college.
	College string

	// MinSpots keeps only records with more than this many semester-1 spots.
	MinSpots int
}

// Filter returns the records surviving all filters, keyed by identity key.
// Later rows with a duplicate key overwrite earlier ones, matching the
// source table's own convention of the last row being authoritative.
func Filter(records []Record, opts FilterOptions) map[string]Record {
	countrySet := make(map[string]bool, len(opts.Countries))
	for _, c := range opts.Countries {
		countrySet[c] = true
	}

	out := make(map[string]Record)
	for _, rec := range records {
		if len(countrySet) > 0 && !countrySet[rec.Country] {
			continue
		}
		if opts.College != "" && !collegeEligible(rec.EligibleColleges, opts.College) {
			continue
		}
		if rec.Sem1Spots <= opts.MinSpots {
			continue
		}
		out[rec.Key()] = rec
	}
	return out
}

func collegeEligible(field, college string) bool {
	f := strings.ToLower(field)
	return strings.Contains(f, strings.ToLower(college)) || strings.Contains(f, "all")
}
