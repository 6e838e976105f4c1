package vacancy

import "testing"

func testDirectory(t *testing.T) *Directory {
	t.Helper()
	records := []Record{
		{
			UniversityName: "University of Queensland",
			Country:        "Australia",
			UniversityCode: "AU-UQ",
			Sem1Spots:      3,
			MinCGPA:        3.5,
			Remarks:        "pooled quota",
		},
		{
			UniversityName: "Queensland University of Technology",
			Country:        "Australia",
			UniversityCode: "AU-QUT",
			Sem1Spots:      2,
			MinCGPA:        3.2,
		},
		{
			UniversityName: "University of Manchester",
			Country:        "United Kingdom",
			UniversityCode: "UK-MAN",
			Sem1Spots:      1,
			MinCGPA:        4.0,
		},
	}
	return NewDirectory(records, nil)
}

func TestDirectory_ExactLookup(t *testing.T) {
	d := testDirectory(t)
	e := d.Lookup("University of Queensland", "Australia")
	if e.Confidence != ConfidenceExact {
		t.Fatalf("confidence = %v, want exact", e.Confidence)
	}
	if e.Sem1Spots != 3 || e.MinCGPA != 3.5 {
		t.Errorf("enrichment = %+v, want spots 3 cgpa 3.5", e)
	}
}

// WHAT: a country alias ("UK" vs "United Kingdom") must not block a fuzzy
// match.
// WHY: the portal and the vacancy list disagree on country spellings.
func TestDirectory_CountryAlias(t *testing.T) {
	d := testDirectory(t)
	e := d.Lookup("The University of Manchester", "UK")
	if e.Confidence == ConfidenceNone {
		t.Fatal("expected a match across country alias, got none")
	}
	if e.MinCGPA != 4.0 {
		t.Errorf("MinCGPA = %v, want 4.0", e.MinCGPA)
	}
}

func TestDirectory_FuzzyFallback(t *testing.T) {
	d := testDirectory(t)
	// Not an exact key ("Univ of Queensland" differs) but keyword +
	// substring overlap should find the right record.
	e := d.Lookup("Queensland University of Technology (Gardens Point)", "Australia")
	if e.Confidence == ConfidenceNone {
		t.Fatal("expected fuzzy match, got none")
	}
	if e.Sem1Spots != 2 {
		t.Errorf("Sem1Spots = %d, want 2 (matched QUT, not UQ)", e.Sem1Spots)
	}
}

// WHAT: a miss returns zero values with ConfidenceNone, never an error.
// WHY: a university advertised on the portal but absent from the PDF is a
// legitimate case; enrichment degrades to defaults.
func TestDirectory_Miss(t *testing.T) {
	d := testDirectory(t)
	e := d.Lookup("Hokkaido University", "Japan")
	if e.Confidence != ConfidenceNone {
		t.Fatalf("confidence = %v, want none", e.Confidence)
	}
	if e.Sem1Spots != 0 || e.MinCGPA != 0 || e.Remarks != "" {
		t.Errorf("miss should yield zero enrichment, got %+v", e)
	}
}

func TestDirectory_WrongCountryBlocksMatch(t *testing.T) {
	d := testDirectory(t)
	e := d.Lookup("University of Queensland", "Germany")
	if e.Confidence != ConfidenceNone {
		t.Fatalf("confidence = %v, want none for wrong country", e.Confidence)
	}
}

func TestDirectory_Stats(t *testing.T) {
	d := testDirectory(t)
	if d.Len() != 3 {
		t.Errorf("Len = %d, want 3", d.Len())
	}
	if d.Countries() != 2 {
		t.Errorf("Countries = %d, want 2", d.Countries())
	}
}
