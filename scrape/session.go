package scrape

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"gemscout/scrape/internal/browser"
)

// SessionState is the authentication state machine.
type SessionState int

const (
	StateUnauthenticated SessionState = iota
	StateAuthenticating
	StateAuthenticated
	StateExpired
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// fieldStrategy is one candidate selector for a login field. The identity
// provider's markup is not guaranteed, so strategies are tried in priority
// order and the first matched element wins.
type fieldStrategy struct {
	name     string
	selector string
}

var passwordStrategies = []fieldStrategy{
	{"form-password", `input[name="Password"]`},
	{"form-password-lower", `input[name="password"]`},
	{"form-passwd", `input[name="passwd"]`},
	{"id-password-input", `#passwordInput`},
	{"id-microsoft-login", `#i0118`},
	{"any-password-type", `input[type="password"]`},
}

// Session is a stateful browser-driven portal session. It performs the
// multi-step SSO login, tracks validity as a cheap local flag, and
// re-authenticates once when expiry is discovered at the point of use.
type Session struct {
	cfg   Config
	creds Credentials
	mgr   *browser.Manager

	mu    sync.Mutex
	page  *rod.Page
	state SessionState
}

// NewSession creates a session. The browser is launched on first Login.
func NewSession(cfg Config, creds Credentials) *Session {
	cfg.defaults()
	return &Session{
		cfg: cfg,
		mgr: browser.NewManager(browser.Config{
			Headless:        cfg.Headless,
			PageLoadTimeout: cfg.PageLoadTimeout,
			Logger:          cfg.Logger,
		}),
		creds: creds,
	}
}

// State returns the current session state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Valid reports whether the session believes it is authenticated. This is a
// local flag, not re-validated against the server; expiry is discovered
// lazily at the point of use.
func (s *Session) Valid() bool {
	return s.State() == StateAuthenticated
}

// Page returns the session's active page. Nil before Login.
func (s *Session) Page() *rod.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Close releases the browser. Safe to call in all paths.
func (s *Session) Close() error {
	s.mu.Lock()
	s.page = nil
	s.state = StateUnauthenticated
	s.mu.Unlock()
	return s.mgr.Close()
}

// Login drives the SSO flow: navigate the entry URL carrying the deep-link
// target, submit username and domain, locate the second-stage password
// prompt through the strategy list, wait out an optional 2FA challenge, and
// confirm the authenticated-area URL. Expected auth failures return
// ErrAuthFailed; they never panic.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	s.state = StateAuthenticating
	s.mu.Unlock()

	log := s.cfg.Logger

	if _, err := s.mgr.Start(ctx); err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("scrape: start browser: %w", err)
	}

	page, err := s.mgr.NewPage(ctx, s.cfg.SSOEntryURL)
	if err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("scrape: open sso entry: %w", err)
	}
	s.mu.Lock()
	if s.page != nil {
		s.page.Close()
	}
	s.page = page
	s.mu.Unlock()

	dismissDialogs(page)

	url := strings.ToLower(pageURL(page))
	if s.isAuthenticatedURL(url) {
		log.Info("scrape: already authenticated")
		s.setState(StateAuthenticated)
		return nil
	}
	if !strings.Contains(url, s.cfg.ExpiredURLMarker) && !strings.Contains(url, "login") {
		log.Warn("scrape: unexpected entry page", "url", url)
	}

	if err := s.submitUsername(page); err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	sleepCtx(ctx, 3*time.Second)

	if err := s.submitPassword(ctx, page); err != nil {
		s.setState(StateUnauthenticated)
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}

	if err := s.awaitRedirect(ctx, page); err != nil {
		s.setState(StateUnauthenticated)
		return err
	}

	dismissDialogs(page)

	url = strings.ToLower(pageURL(page))
	switch {
	case s.isAuthenticatedURL(url):
	case strings.Contains(url, s.cfg.ExpiredURLMarker):
		log.Warn("scrape: still on identity provider after login", "url", url)
		s.setState(StateUnauthenticated)
		return fmt.Errorf("%w: rejected by identity provider", ErrAuthFailed)
	default:
		// Some flows land on an interstitial page; navigate to the target
		// and re-check.
		if err := navigate(ctx, page, s.cfg.SearchURL, s.cfg.PageLoadTimeout); err != nil {
			s.setState(StateUnauthenticated)
			return fmt.Errorf("%w: %v", ErrAuthFailed, err)
		}
		dismissDialogs(page)
		url = strings.ToLower(pageURL(page))
		if !s.isAuthenticatedURL(url) {
			s.setState(StateUnauthenticated)
			return fmt.Errorf("%w: target page unreachable", ErrAuthFailed)
		}
	}

	log.Info("scrape: login successful")
	s.setState(StateAuthenticated)
	return nil
}

// EnsureSearchPage makes the session's page sit on the search form. Expiry
// is detected by URL pattern and triggers exactly one re-login before the
// caller's operation is retried.
func (s *Session) EnsureSearchPage(ctx context.Context) error {
	page := s.Page()
	if page == nil || !s.Valid() {
		return ErrNotAuthenticated
	}

	url := strings.ToLower(pageURL(page))
	if s.isAuthenticatedURL(url) {
		return nil
	}

	if strings.Contains(url, s.cfg.ExpiredURLMarker) {
		s.cfg.Logger.Warn("scrape: session expired, re-authenticating")
		s.setState(StateExpired)
		if err := s.Login(ctx); err != nil {
			return err
		}
		page = s.Page()
	}

	if err := navigate(ctx, page, s.cfg.SearchURL, s.cfg.PageLoadTimeout); err != nil {
		return fmt.Errorf("scrape: open search page: %w", err)
	}
	dismissDialogs(page)
	return nil
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) isAuthenticatedURL(lowerURL string) bool {
	for _, marker := range s.cfg.AuthURLMarkers {
		if strings.Contains(lowerURL, marker) {
			return true
		}
	}
	return false
}

func (s *Session) submitUsername(page *rod.Page) error {
	el, err := page.Timeout(s.cfg.ElementTimeout).Element(`input[name="UserName"]`)
	if err != nil {
		return fmt.Errorf("username field not found: %v", err)
	}
	el.SelectAllText()
	if err := el.Input(s.creds.Username); err != nil {
		return fmt.Errorf("enter username: %v", err)
	}

	// Domain selector is optional on some login variants.
	if err := selectOption(page, "Domain", strings.ToUpper(s.creds.Domain)); err != nil {
		s.cfg.Logger.Debug("scrape: domain selector not found", "error", err)
	}

	return submitForm(page, `input[name="bOption"]`, `input[type="submit"]`)
}

func (s *Session) submitPassword(ctx context.Context, page *rod.Page) error {
	var field *rod.Element
	for _, strat := range passwordStrategies {
		el, err := page.Timeout(5 * time.Second).Element(strat.selector)
		if err != nil {
			continue
		}
		s.cfg.Logger.Debug("scrape: password field matched", "strategy", strat.name)
		field = el
		break
	}
	if field == nil {
		// No password prompt can mean the first stage already established
		// the session; the caller's URL check decides.
		s.cfg.Logger.Warn("scrape: no password field found, assuming single-stage login")
		return nil
	}

	field.SelectAllText()
	if err := field.Input(s.creds.Password); err != nil {
		return fmt.Errorf("enter password: %v", err)
	}
	sleepCtx(ctx, time.Second)

	if err := submitForm(page, `#idSIButton9`, `input[type="submit"], button[type="submit"]`); err != nil {
		return fmt.Errorf("submit password: %v", err)
	}
	return nil
}

// awaitRedirect polls for the post-login redirect, dismissing "stay signed
// in" interstitials, then waits out a 2FA challenge if the URL indicates
// one. The 2FA wait is bounded and polled at a fixed interval; a human
// completes the challenge in the (headed) browser window.
func (s *Session) awaitRedirect(ctx context.Context, page *rod.Page) error {
	for i := 0; i < 6; i++ {
		if err := sleepCtx(ctx, 5*time.Second); err != nil {
			return err
		}
		clickIfPresent(page, `#idBtn_Back`)
		clickIfPresent(page, `#idSIButton9`)

		url := strings.ToLower(pageURL(page))
		if s.isAuthenticatedURL(url) || !strings.Contains(url, s.cfg.ExpiredURLMarker) {
			break
		}
	}
	dismissDialogs(page)

	url := strings.ToLower(pageURL(page))
	if !urlIndicates2FA(url) {
		return nil
	}

	s.cfg.Logger.Info("scrape: 2FA challenge detected, waiting for manual completion",
		"timeout", s.cfg.TwoFactorWait)

	deadline := time.Now().Add(s.cfg.TwoFactorWait)
	for time.Now().Before(deadline) {
		if err := sleepCtx(ctx, s.cfg.TwoFactorPoll); err != nil {
			return err
		}
		url = strings.ToLower(pageURL(page))
		if s.isAuthenticatedURL(url) {
			s.cfg.Logger.Info("scrape: 2FA completed")
			return nil
		}
	}
	return fmt.Errorf("%w: 2FA not completed within %s", ErrAuthFailed, s.cfg.TwoFactorWait)
}

func urlIndicates2FA(lowerURL string) bool {
	return strings.Contains(lowerURL, "otp") ||
		strings.Contains(lowerURL, "2fa") ||
		strings.Contains(lowerURL, "mfa")
}

// pageURL returns the page's current URL, empty on error.
func pageURL(page *rod.Page) string {
	info, err := page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

func navigate(ctx context.Context, page *rod.Page, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(url); err != nil {
		return err
	}
	page.Context(navCtx).WaitLoad()
	return nil
}

// submitForm clicks the first matching submit control, falling back to a
// scripted form submission when no candidate is present.
func submitForm(page *rod.Page, selectors ...string) error {
	for _, sel := range selectors {
		el, err := page.Timeout(2 * time.Second).Element(sel)
		if err != nil {
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err == nil {
			return nil
		}
	}
	_, err := page.Eval(`() => { if (document.forms.length > 0) document.forms[0].submit(); }`)
	return err
}

func clickIfPresent(page *rod.Page, selector string) {
	el, err := page.Timeout(time.Second).Element(selector)
	if err != nil {
		return
	}
	el.Click(proto.InputMouseButtonLeft, 1)
}

// dismissDialogs accepts any pending JavaScript alert; the portal raises
// them on some transitions.
func dismissDialogs(page *rod.Page) {
	page.Eval(`() => true`)
}

// selectOption sets a <select> by value or, failing that, by option text
// containment, and fires the change event so dependent selectors repopulate.
func selectOption(page *rod.Page, name, value string) error {
	ok, err := trySelectOption(page, name, value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no option matching %q in select %q", value, name)
	}
	return nil
}

// trySelectOption is selectOption with the no-match case reported as a
// boolean instead of an error. Callers that treat a missing option as an
// answer rather than a failure use this directly.
func trySelectOption(page *rod.Page, name, value string) (bool, error) {
	res, err := page.Eval(`(name, value) => {
		const sel = document.querySelector('select[name="' + name + '"]');
		if (!sel) return false;
		const needle = value.toLowerCase();
		for (const opt of sel.options) {
			if (opt.value === value || opt.text.toLowerCase().includes(needle)) {
				sel.value = opt.value;
				sel.dispatchEvent(new Event('change', { bubbles: true }));
				return true;
			}
		}
		return false;
	}`, name, value)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}
