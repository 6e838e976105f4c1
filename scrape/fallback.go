package scrape

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseResultsHTML extracts approved mappings from a search results page.
// The result table alternates tr.row0 and tr.row1 rows; data rows open with
// a colspan=2 home module code cell, which distinguishes them from expansion
// detail rows. Rows are kept only when the status contains "approved" and
// the approval year falls inside the years window. Parsing is tolerant: rows
// that do not fit the layout are skipped, not fatal.
func ParseResultsHTML(html string, years []string) ([]Mapping, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("scrape: parse results html: %w", err)
	}

	var mappings []Mapping
	doc.Find("tr.row0, tr.row1").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 8 {
			return
		}
		// Data rows carry the home module code in a two-column cell; rows
		// without it are expansion detail rows.
		if span, _ := cells.Eq(0).Attr("colspan"); span != "2" {
			return
		}

		text := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}

		m := Mapping{
			HomeModuleCode:    text(0),
			HomeModuleName:    text(1),
			HomeModuleType:    text(2),
			PartnerModuleCode: text(3),
			PartnerModuleName: text(4),
			AcademicUnits:     text(5),
			ApprovalStatus:    text(6),
			ApprovalYear:      text(7),
		}
		if cells.Length() >= 9 {
			m.Semester = text(8)
		}

		if m.HomeModuleCode == "" {
			return
		}
		if !strings.Contains(strings.ToLower(m.ApprovalStatus), "approved") {
			return
		}
		if !yearApproved(m.ApprovalYear, years) {
			return
		}
		mappings = append(mappings, m)
	})
	return mappings, nil
}

func yearApproved(year string, years []string) bool {
	for _, y := range years {
		if strings.Contains(year, y) {
			return true
		}
	}
	return false
}
