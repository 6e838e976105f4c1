package scrape

import "testing"

const resultsPage = `
<html><body><table>
<tr class="header"><td>Code</td><td>Name</td></tr>
<tr class="row0">
  <td colspan="2">CS2040</td><td>Data Structures</td><td>Core</td>
  <td>COMP2100</td><td>Algorithms and Structures</td><td>3</td>
  <td>Approved</td><td>2024</td><td>1</td>
</tr>
<tr class="row1">
  <td colspan="2">CS2040</td><td>Data Structures</td><td>Core</td>
  <td>COMP2101</td><td>Programming II</td><td>3</td>
  <td>Rejected</td><td>2024</td><td>1</td>
</tr>
<tr class="row0">
  <td colspan="2">MA1001</td><td>Calculus I</td><td>Core</td>
  <td>MATH110</td><td>Calculus</td><td>4</td>
  <td>Approved</td><td>2019</td><td>2</td>
</tr>
<tr class="row1">
  <td>detail</td><td>expansion row without colspan</td><td>x</td><td>x</td>
  <td>x</td><td>x</td><td>Approved</td><td>2024</td>
</tr>
<tr class="row0">
  <td colspan="2">EE3001</td><td>Signals</td><td>Major PE</td>
  <td>ELEC310</td><td>Signals and Systems</td><td>3</td>
  <td>Approved (conditional)</td><td>Sem 1 2025</td>
</tr>
</table></body></html>`

func TestParseResultsHTML(t *testing.T) {
	// WHAT: Only colspan-2 data rows with an approved status inside the
	// years window survive; detail rows, rejections, and stale approvals
	// are dropped.
	// WHY: The portal mixes data rows, expansion rows, and historical
	// decisions in one table; downstream counts must reflect usable
	// mappings only.
	mappings, err := ParseResultsHTML(resultsPage, []string{"2024", "2025"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("expected 2 mappings, got %d: %+v", len(mappings), mappings)
	}

	first := mappings[0]
	if first.HomeModuleCode != "CS2040" || first.PartnerModuleCode != "COMP2100" {
		t.Fatalf("unexpected first mapping: %+v", first)
	}
	if first.AcademicUnits != "3" || first.Semester != "1" {
		t.Fatalf("unexpected first mapping details: %+v", first)
	}

	// Status and year matching are substring-based; "Approved (conditional)"
	// in "Sem 1 2025" still counts, and the 8-cell row has no semester.
	second := mappings[1]
	if second.HomeModuleCode != "EE3001" || second.Semester != "" {
		t.Fatalf("unexpected second mapping: %+v", second)
	}
}

func TestParseResultsHTML_EmptyPage(t *testing.T) {
	// WHAT: A page with no result rows parses to zero mappings, not an error.
	mappings, err := ParseResultsHTML("<html><body><p>No records found</p></body></html>", []string{"2024"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(mappings) != 0 {
		t.Fatalf("expected no mappings, got %+v", mappings)
	}
}
