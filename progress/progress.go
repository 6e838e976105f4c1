// Package progress renders crawl events as console output. It is the
// terminal counterpart of the server's SSE stream: a line per milestone and
// a width-aware bar per university, safe for CJK university names.
package progress

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"

	"gemscout/scrape"
)

const (
	defaultBarWidth   = 24
	defaultLabelWidth = 44
)

// Renderer writes human-readable progress lines for one crawl job.
type Renderer struct {
	out        io.Writer
	barWidth   int
	labelWidth int

	done  int
	total int
}

// NewRenderer creates a renderer writing to out.
func NewRenderer(out io.Writer) *Renderer {
	return &Renderer{
		out:        out,
		barWidth:   defaultBarWidth,
		labelWidth: defaultLabelWidth,
	}
}

// Run consumes events until the channel closes. It blocks; run it on the
// goroutine that owns the terminal.
func (r *Renderer) Run(events <-chan scrape.Event) {
	for e := range events {
		r.render(e)
	}
}

func (r *Renderer) render(e scrape.Event) {
	switch v := e.(type) {
	case scrape.Started:
		fmt.Fprintln(r.out, "logging in to the exchange portal...")
	case scrape.Discovery:
		r.total = v.Universities
		fmt.Fprintf(r.out, "discovered %d countries, %d universities\n", v.Countries, v.Universities)
	case scrape.CountryStart:
		fmt.Fprintf(r.out, "\n%s (%d/%d)\n", v.Country, v.CountryIndex, v.TotalCountries)
	case scrape.UniversityComplete:
		r.done = v.UniversitiesDone
		if v.TotalUniversities > 0 {
			r.total = v.TotalUniversities
		}
		fmt.Fprintf(r.out, "%s %s %d mappings\n",
			Bar(r.done, r.total, r.barWidth),
			Label(v.University, r.labelWidth),
			v.MappingCount)
	case scrape.UniversityError:
		fmt.Fprintf(r.out, "%s %s FAILED: %s\n",
			Bar(r.done, r.total, r.barWidth),
			Label(v.University, r.labelWidth),
			v.Message)
	case scrape.Completed:
		fmt.Fprintf(r.out, "\ndone: %d universities, %d mappings\n", v.Universities, v.TotalMappings)
	case scrape.ErrorEvent:
		fmt.Fprintf(r.out, "\ncrawl failed: %s\n", v.Message)
	}
}

// Bar renders a fixed-width progress bar like [=====>     ] 12/40.
func Bar(done, total, width int) string {
	if width < 4 {
		width = 4
	}
	filled := 0
	if total > 0 {
		filled = done * width / total
		if filled > width {
			filled = width
		}
	}
	var b strings.Builder
	b.WriteByte('[')
	b.WriteString(strings.Repeat("=", filled))
	if filled < width {
		b.WriteByte('>')
		b.WriteString(strings.Repeat(" ", width-filled-1))
	}
	b.WriteByte(']')
	fmt.Fprintf(&b, " %d/%d", done, total)
	return b.String()
}

// Label truncates or pads s to exactly width terminal columns. Wide runes
// count as two columns, so mixed-script names stay aligned.
func Label(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		return runewidth.Truncate(s, width, "...")
	}
	return runewidth.FillRight(s, width)
}
