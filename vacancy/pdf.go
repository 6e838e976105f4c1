package vacancy

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Expected column layout of the vacancy table:
//
//	0  continent
//	1  country/region
//	2  university code
//	3  university sub code
//	4  university name
//	5  status
//	6  eligible colleges
//	7  full year spots
//	8  sem 1 spots
//	9  sem 2 spots
//	10 min CGPA
//	11 remarks
const minColumns = 8

// headerTokens mark rows that repeat the table header on each page.
var headerTokens = map[string]bool{
	"University":      true,
	"University Name": true,
}

// ExtractFile parses the vacancy list PDF at path into records.
// A missing file is a fatal precondition, reported before any parsing.
// Malformed rows are skipped, never fatal.
func ExtractFile(path string, logger *slog.Logger) ([]Record, error) {
	if logger == nil {
		logger = slog.Default()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vacancy: open %s: %w", path, err)
	}
	defer f.Close()

	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(f, conf)
	if err != nil {
		return nil, fmt.Errorf("vacancy: pdfcpu read: %w", err)
	}

	var records []Record
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		rows := extractPageRows(ctx, pageNr)
		for _, row := range rows {
			if len(row) < minColumns {
				continue
			}
			rec, ok := parseRow(row)
			if !ok {
				continue
			}
			records = append(records, rec)
		}
	}

	logger.Info("vacancy: extracted records", "path", path, "pages", ctx.PageCount, "count", len(records))
	return records, nil
}

// parseRow converts one table row into a Record. Returns false for header
// rows and rows missing a university name or country; those are discarded,
// not errors.
func parseRow(row []string) (Record, bool) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	name := cell(4)
	if name == "" || headerTokens[name] {
		return Record{}, false
	}
	country := cell(1)
	if country == "" {
		return Record{}, false
	}

	return Record{
		Continent:         cell(0),
		Country:           country,
		UniversityCode:    cell(2),
		UniversitySubCode: cell(3),
		UniversityName:    name,
		Status:            cell(5),
		EligibleColleges:  cell(6),
		FullYearSpots:     parseInt(cell(7)),
		Sem1Spots:         parseInt(cell(8)),
		Sem2Spots:         parseInt(cell(9)),
		MinCGPA:           parseFloat(cell(10)),
		Remarks:           cell(11),
	}, true
}

var (
	nonDigit        = regexp.MustCompile(`[^\d]`)
	nonDigitOrPoint = regexp.MustCompile(`[^\d.]`)
)

// parseInt strips non-digit characters and converts. Malformed or empty
// input yields 0, never an error.
func parseInt(s string) int {
	s = nonDigit.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// parseFloat strips everything but digits and the decimal point. Malformed
// or empty input yields 0.0, never an error.
func parseFloat(s string) float64 {
	s = nonDigitOrPoint.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0.0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0.0
	}
	return f
}

// extractPageRows reads a page's content stream and reassembles table rows.
// Each string literal shown by a Tj/TJ operator is one cell; a text
// positioning operator (Td/TD) closes the current cell, and a line advance
// (T* or ') closes the current row.
func extractPageRows(ctx *model.Context, pageNr int) [][]string {
	r, err := pdfcpu.ExtractPageContent(ctx, pageNr)
	if err != nil {
		return nil
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return nil
	}
	return rowsFromStream(data)
}

// pdfStringRe matches PDF string literals in parentheses: (text here)
var pdfStringRe = regexp.MustCompile(`\(([^)]*)\)`)

func rowsFromStream(data []byte) [][]string {
	var rows [][]string
	var row []string
	var cell strings.Builder

	endCell := func() {
		if cell.Len() > 0 {
			row = append(row, cleanCell(cell.String()))
			cell.Reset()
		}
	}
	endRow := func() {
		endCell()
		if len(row) > 0 {
			rows = append(rows, row)
			row = nil
		}
	}

	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		switch {
		case bytes.HasSuffix(line, []byte("Tj")), bytes.HasSuffix(line, []byte("TJ")):
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				cell.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("'")) && bytes.Contains(line, []byte("(")):
			endRow()
			for _, m := range pdfStringRe.FindAllSubmatch(line, -1) {
				cell.WriteString(decodePDFString(m[1]))
			}
		case bytes.HasSuffix(line, []byte("Td")), bytes.HasSuffix(line, []byte("TD")):
			endCell()
		case bytes.Equal(line, []byte("T*")), bytes.Equal(line, []byte("ET")):
			endRow()
		}
	}
	endRow()

	return rows
}

// decodePDFString handles basic PDF escape sequences.
func decodePDFString(raw []byte) string {
	var sb strings.Builder
	for i := 0; i < len(raw); i++ {
		if raw[i] == '\\' && i+1 < len(raw) {
			i++
			switch raw[i] {
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '(':
				sb.WriteByte('(')
			case ')':
				sb.WriteByte(')')
			default:
				// Octal escape (e.g. \040 for space).
				if raw[i] >= '0' && raw[i] <= '7' {
					val := int(raw[i] - '0')
					if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
						i++
						val = val*8 + int(raw[i]-'0')
						if i+1 < len(raw) && raw[i+1] >= '0' && raw[i+1] <= '7' {
							i++
							val = val*8 + int(raw[i]-'0')
						}
					}
					sb.WriteByte(byte(val))
				} else {
					sb.WriteByte(raw[i])
				}
			}
		} else {
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// cleanCell collapses internal whitespace in a cell value.
func cleanCell(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
