package progress

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"

	"gemscout/scrape"
)

func TestBar(t *testing.T) {
	// WHAT: The bar fills proportionally and never overruns its width.
	if got := Bar(0, 10, 10); !strings.HasPrefix(got, "[>") || !strings.HasSuffix(got, "] 0/10") {
		t.Fatalf("empty bar: %q", got)
	}
	if got := Bar(5, 10, 10); !strings.Contains(got, "[=====>") {
		t.Fatalf("half bar: %q", got)
	}
	if got := Bar(10, 10, 10); !strings.Contains(got, "[==========]") {
		t.Fatalf("full bar: %q", got)
	}
	// Overshoot clamps instead of panicking on a negative repeat count.
	if got := Bar(15, 10, 10); !strings.Contains(got, "[==========]") {
		t.Fatalf("overshot bar: %q", got)
	}
	if got := Bar(3, 0, 10); !strings.HasSuffix(got, " 3/0") {
		t.Fatalf("zero total: %q", got)
	}
}

func TestLabel_WidthAware(t *testing.T) {
	// WHAT: Labels occupy exactly the requested number of terminal columns
	// whether the name is ASCII or CJK.
	// WHY: Misaligned columns are the first thing an operator notices when
	// Japanese partner names enter the list.
	for _, name := range []string{"Lyon", "Kyoto University", "京都大学"} {
		got := Label(name, 20)
		if w := runewidth.StringWidth(got); w != 20 {
			t.Fatalf("Label(%q) width %d, want 20", name, w)
		}
	}

	long := strings.Repeat("University of Very Long Names ", 3)
	got := Label(long, 20)
	if w := runewidth.StringWidth(got); w > 20 {
		t.Fatalf("truncated label width %d, want <= 20", w)
	}
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("truncated label missing ellipsis: %q", got)
	}
}

func TestRenderer_FullCrawl(t *testing.T) {
	// WHAT: A renderer fed a complete event sequence produces one line per
	// milestone, in order, and stops when the channel closes.
	sink := scrape.NewSink(32)
	sink.Emit(scrape.Started{})
	sink.Emit(scrape.Discovery{Countries: 1, Universities: 2})
	sink.Emit(scrape.CountryStart{Country: "France", CountryIndex: 1, TotalCountries: 1})
	sink.Emit(scrape.UniversityComplete{Country: "France", University: "Sorbonne", MappingCount: 3, UniversitiesDone: 1, TotalUniversities: 2})
	sink.Emit(scrape.UniversityError{Country: "France", University: "Lyon", Message: "timeout"})
	sink.Emit(scrape.Completed{Universities: 2, TotalMappings: 3})
	sink.Close()

	var buf strings.Builder
	NewRenderer(&buf).Run(sink.Events())
	out := buf.String()

	for _, want := range []string{
		"logging in",
		"discovered 1 countries, 2 universities",
		"France (1/1)",
		"Sorbonne",
		"3 mappings",
		"FAILED: timeout",
		"done: 2 universities, 3 mappings",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(out, "1/2") {
		t.Fatalf("bar counter missing:\n%s", out)
	}
}

func TestRenderer_JobFailure(t *testing.T) {
	sink := scrape.NewSink(4)
	sink.Emit(scrape.Started{})
	sink.Emit(scrape.ErrorEvent{Message: "login failed"})
	sink.Close()

	var buf strings.Builder
	NewRenderer(&buf).Run(sink.Events())
	if !strings.Contains(buf.String(), "crawl failed: login failed") {
		t.Fatalf("failure line missing:\n%s", buf.String())
	}
}
