package scrape

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Dropdown element names on the search form. The university selector is
// dependent: its options repopulate after a country selection.
const (
	selectCountry    = "which_cty"
	selectUniversity = "which_uni_val"
	selectCourse     = "which_course"
)

// optionValueAll is the wildcard option present in every selector.
const optionValueAll = "ALL"

// Navigator drives the search form on top of an authenticated Session. It
// implements Portal.
type Navigator struct {
	cfg     Config
	session *Session
}

// NewNavigator creates a navigator with its own session.
func NewNavigator(cfg Config, creds Credentials) *Navigator {
	cfg.defaults()
	return &Navigator{cfg: cfg, session: NewSession(cfg, creds)}
}

// Login authenticates the underlying session.
func (n *Navigator) Login(ctx context.Context) error {
	return n.session.Login(ctx)
}

// Close releases the browser.
func (n *Navigator) Close() error {
	return n.session.Close()
}

// EnumerateCountries walks the country selector and, for each country, the
// repopulated university selector. Options are returned in selector order;
// the wildcard and placeholder entries are skipped.
func (n *Navigator) EnumerateCountries(ctx context.Context) (CountryIndex, error) {
	if err := n.session.EnsureSearchPage(ctx); err != nil {
		return CountryIndex{}, err
	}
	page := n.session.Page()

	countryOpts, err := readOptions(page, selectCountry)
	if err != nil {
		return CountryIndex{}, fmt.Errorf("scrape: read country selector: %w", err)
	}

	ix := CountryIndex{Universities: make(map[string][]string)}
	for _, opt := range countryOpts {
		if !realOption(opt) {
			continue
		}
		if err := selectOption(page, selectCountry, opt.value); err != nil {
			n.cfg.Logger.Warn("scrape: select country failed", "country", opt.text, "error", err)
			continue
		}
		if err := sleepCtx(ctx, n.cfg.DropdownSettle); err != nil {
			return CountryIndex{}, err
		}

		uniOpts, err := readOptions(page, selectUniversity)
		if err != nil {
			n.cfg.Logger.Warn("scrape: read university selector failed", "country", opt.text, "error", err)
			continue
		}
		var unis []string
		for _, u := range uniOpts {
			if realOption(u) {
				unis = append(unis, u.text)
			}
		}
		ix.Countries = append(ix.Countries, opt.text)
		ix.Universities[opt.text] = unis
	}

	n.cfg.Logger.Info("scrape: enumerated portal",
		"countries", len(ix.Countries), "universities", ix.TotalUniversities())
	return ix, nil
}

// SearchUniversityMappings selects the country, the university, and the
// wildcard course, submits the form, and parses the result table. The return
// value groups approved mappings by home module code (uppercased). An empty
// result set is a valid answer, not an error.
func (n *Navigator) SearchUniversityMappings(ctx context.Context, university, country string) (map[string][]Mapping, error) {
	if err := n.session.EnsureSearchPage(ctx); err != nil {
		return nil, err
	}
	page := n.session.Page()

	if err := selectOption(page, selectCountry, country); err != nil {
		return nil, fmt.Errorf("scrape: select country %q: %w", country, err)
	}
	if err := sleepCtx(ctx, n.cfg.DropdownSettle); err != nil {
		return nil, err
	}

	listed, err := n.selectUniversity(page, university)
	if err != nil {
		return nil, fmt.Errorf("scrape: select university %q: %w", university, err)
	}
	if !listed {
		// Universities advertised in the vacancy list are not always on the
		// portal. That is an empty answer, not a failure to retry.
		n.cfg.Logger.Debug("scrape: university not listed on portal",
			"university", university, "country", country)
		return map[string][]Mapping{}, nil
	}
	if err := selectOption(page, selectCourse, optionValueAll); err != nil {
		n.cfg.Logger.Debug("scrape: course selector not found", "error", err)
	}

	if err := n.submitSearch(ctx, page); err != nil {
		return nil, fmt.Errorf("scrape: submit search: %w", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, fmt.Errorf("scrape: read results page: %w", err)
	}
	mappings, err := ParseResultsHTML(html, n.cfg.ApprovedYears)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]Mapping)
	for _, m := range mappings {
		code := strings.ToUpper(m.HomeModuleCode)
		grouped[code] = append(grouped[code], m)
	}
	return grouped, nil
}

// selectUniversity matches an option by exact text, then by substring
// containment, then by the name's first two words. Portal option texts carry
// inconsistent punctuation and suffixes relative to their canonical names.
// The boolean reports whether any candidate matched; errors are DOM
// evaluation failures only.
func (n *Navigator) selectUniversity(page *rod.Page, university string) (bool, error) {
	for i, candidate := range universityCandidates(university) {
		ok, err := trySelectOption(page, selectUniversity, candidate)
		if err != nil {
			return false, err
		}
		if ok {
			if i > 0 {
				n.cfg.Logger.Debug("scrape: university matched by prefix",
					"university", university, "prefix", candidate)
			}
			return true, nil
		}
	}
	return false, nil
}

// universityCandidates returns the selector texts tried for a university,
// most specific first: the full name, then its first two words.
func universityCandidates(university string) []string {
	candidates := []string{university}
	if words := strings.Fields(university); len(words) >= 2 {
		candidates = append(candidates, words[0]+" "+words[1])
	}
	return candidates
}

func (n *Navigator) submitSearch(ctx context.Context, page *rod.Page) error {
	var submitted bool
	for _, sel := range []string{`input[type="submit"]`, `button[type="submit"]`} {
		el, err := page.Timeout(n.cfg.ElementTimeout).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			submitted = true
			break
		}
	}
	if !submitted {
		if _, err := page.Eval(`() => { if (document.forms.length > 0) document.forms[0].submit(); }`); err != nil {
			return err
		}
	}

	loadCtx, cancel := context.WithTimeout(ctx, n.cfg.PageLoadTimeout)
	defer cancel()
	if err := page.Context(loadCtx).WaitLoad(); err != nil {
		n.cfg.Logger.Warn("scrape: results load wait timed out", "error", err)
	}
	return nil
}

type option struct {
	value string
	text  string
}

// realOption filters wildcard and placeholder entries out of a selector.
func realOption(o option) bool {
	if o.value == "" || o.value == optionValueAll {
		return false
	}
	text := strings.TrimSpace(o.text)
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	return !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "--")
}

func readOptions(page *rod.Page, name string) ([]option, error) {
	res, err := page.Eval(`(name) => {
		const sel = document.querySelector('select[name="' + name + '"]');
		if (!sel) return null;
		return Array.from(sel.options).map(o => ({ value: o.value, text: o.text.trim() }));
	}`, name)
	if err != nil {
		return nil, err
	}
	if res.Value.Nil() {
		return nil, fmt.Errorf("select %q not found", name)
	}

	var opts []option
	for _, item := range res.Value.Arr() {
		opts = append(opts, option{
			value: item.Get("value").Str(),
			text:  item.Get("text").Str(),
		})
	}
	return opts, nil
}
