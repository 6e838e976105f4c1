// Package vacancy parses the exchange vacancy list PDF into structured
// university records, filters them for a student's eligibility, and groups
// campus variations of the same institution. It also provides Directory, an
// enrichment lookup used to attach spots/CGPA data to scraped results.
package vacancy

// Record is one row of the vacancy list. Immutable once parsed.
type Record struct {
	Continent         string  `json:"continent"`
	Country           string  `json:"country"`
	UniversityCode    string  `json:"university_code"`
	UniversitySubCode string  `json:"university_sub_code"`
	UniversityName    string  `json:"university_name"`
	Status            string  `json:"status"`
	EligibleColleges  string  `json:"eligible_colleges"`
	FullYearSpots     int     `json:"full_year_spots"`
	Sem1Spots         int     `json:"sem1_spots"`
	Sem2Spots         int     `json:"sem2_spots"`
	MinCGPA           float64 `json:"min_cgpa"`
	Remarks           string  `json:"remarks"`
}

// Key returns the record's identity key: the university code, suffixed with
// the sub-code when one exists (campuses share a code but not a sub-code).
func (r Record) Key() string {
	if r.UniversitySubCode != "" {
		return r.UniversityCode + "_" + r.UniversitySubCode
	}
	return r.UniversityCode
}
