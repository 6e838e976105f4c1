package vacancy

import (
	"sort"
	"strings"

	"gemscout/normalize"
)

// Group is a merged set of campus variations that normalize to the same
// institution name. Spots pool across campuses; the CGPA floor is the most
// permissive positive one; codes are unioned for traceability.
type Group struct {
	Record

	AllCodes       []string `json:"all_codes"`
	AllSubCodes    []string `json:"all_sub_codes"`
	VariationCount int      `json:"variation_count"`
	MergedIDs      []string `json:"merged_ids"`
}

// GroupVariations merges records whose names normalize to the same key.
// The result is keyed by the first (sorted) identity key of each group.
// Single-member groups pass through with VariationCount 1.
func GroupVariations(records map[string]Record) map[string]Group {
	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	byName := make(map[string][]string)
	var order []string
	for _, id := range ids {
		key := normalize.BaseName(records[id].UniversityName)
		if _, seen := byName[key]; !seen {
			order = append(order, key)
		}
		byName[key] = append(byName[key], id)
	}

	out := make(map[string]Group, len(order))
	for _, key := range order {
		members := byName[key]
		primary := members[0]
		if len(members) == 1 {
			out[primary] = Group{
				Record:         records[primary],
				VariationCount: 1,
				MergedIDs:      members,
			}
			continue
		}
		out[primary] = mergeVariations(records, members)
	}
	return out
}

func mergeVariations(records map[string]Record, ids []string) Group {
	merged := Group{
		Record:         records[ids[0]],
		VariationCount: len(ids),
		MergedIDs:      ids,
	}

	totalSpots := 0
	minCGPA := 0.0
	var codes, subCodes, remarks []string
	codeSeen := make(map[string]bool)
	subSeen := make(map[string]bool)
	remarkSeen := make(map[string]bool)

	for _, id := range ids {
		rec := records[id]

		// Shortest original name is usually the canonical one.
		if len(rec.UniversityName) < len(merged.UniversityName) {
			merged.UniversityName = rec.UniversityName
		}

		totalSpots += rec.Sem1Spots

		// Minimum positive CGPA: zero means "not stated", not "no floor".
		if rec.MinCGPA > 0 && (minCGPA == 0 || rec.MinCGPA < minCGPA) {
			minCGPA = rec.MinCGPA
		}

		if rec.UniversityCode != "" && !codeSeen[rec.UniversityCode] {
			codeSeen[rec.UniversityCode] = true
			codes = append(codes, rec.UniversityCode)
		}
		if rec.UniversitySubCode != "" && !subSeen[rec.UniversitySubCode] {
			subSeen[rec.UniversitySubCode] = true
			subCodes = append(subCodes, rec.UniversitySubCode)
		}
		if rec.Remarks != "" && !remarkSeen[rec.Remarks] {
			remarkSeen[rec.Remarks] = true
			remarks = append(remarks, rec.Remarks)
		}
	}

	merged.Sem1Spots = totalSpots
	merged.MinCGPA = minCGPA
	merged.AllCodes = codes
	merged.AllSubCodes = subCodes
	merged.Remarks = strings.Join(remarks, " | ")
	if len(codes) > 0 {
		merged.UniversityCode = codes[0]
	}
	if len(subCodes) > 0 {
		merged.UniversitySubCode = subCodes[0]
	} else {
		merged.UniversitySubCode = ""
	}

	return merged
}
