package scrape

import "errors"

var (
	// ErrAuthFailed marks an expected authentication failure: bad
	// credentials, an SSO error page, or a 2FA timeout. Callers map this to
	// an unauthorized-style response instead of retrying blindly.
	ErrAuthFailed = errors.New("scrape: authentication failed")

	// ErrNotAuthenticated is returned by operations that require a prior
	// successful Login.
	ErrNotAuthenticated = errors.New("scrape: session not authenticated")

	// ErrCrawlActive is returned when a bulk crawl is requested while
	// another one is still running against the same store.
	ErrCrawlActive = errors.New("scrape: a crawl is already running")

	// ErrJobNotFound is returned for status or cancel requests naming an
	// unknown job id.
	ErrJobNotFound = errors.New("scrape: job not found")

	// ErrJobTerminal is returned when a transition is requested out of a
	// terminal job state.
	ErrJobTerminal = errors.New("scrape: job already in a terminal state")
)
