package scrape

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Credentials is the (username, password, domain) triple the SSO flow needs.
type Credentials struct {
	Username string
	Password string
	Domain   string
}

// Config configures the session, navigator, and orchestrators.
type Config struct {
	// SSOEntryURL is the login entry point. The deep-link target is appended
	// as a query parameter so a successful login lands on the search page.
	SSOEntryURL string

	// SearchURL is the authenticated search page.
	SearchURL string

	// AuthURLMarkers are URL substrings (lowercase) indicating the
	// authenticated area has been reached.
	AuthURLMarkers []string

	// ExpiredURLMarker is the URL substring (lowercase) indicating the
	// session bounced back to the identity provider.
	ExpiredURLMarker string

	// ApprovedYears is the recent-years window; mappings outside it are
	// dropped at parse time.
	ApprovedYears []string

	// DelayMin/DelayMax bound the uniform random politeness delay applied
	// after every per-university round trip. This is a politeness contract
	// toward the portal, not a performance knob.
	DelayMin time.Duration
	DelayMax time.Duration

	// PageLoadTimeout bounds full page navigations.
	PageLoadTimeout time.Duration

	// ElementTimeout bounds individual element waits.
	ElementTimeout time.Duration

	// DropdownSettle is how long to wait after a country selection for the
	// dependent university selector to repopulate.
	DropdownSettle time.Duration

	// TwoFactorWait bounds the manual 2FA completion window.
	TwoFactorWait time.Duration

	// TwoFactorPoll is the interval at which the post-2FA URL is rechecked.
	TwoFactorPoll time.Duration

	// MaxRetries bounds per-university search attempts before the
	// university is recorded as zero mappings.
	MaxRetries int

	// RetryBackoff is the linear backoff unit: attempt n waits n*RetryBackoff.
	RetryBackoff time.Duration

	// CheckpointEvery is the number of universities between checkpoint
	// writes in an incremental crawl.
	CheckpointEvery int

	// Headless runs Chrome without a visible window. Headed mode is useful
	// when a human must complete 2FA.
	Headless bool

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if len(c.AuthURLMarkers) == 0 {
		c.AuthURLMarkers = []string{"instep", "show_rec"}
	}
	if c.ExpiredURLMarker == "" {
		c.ExpiredURLMarker = "sso"
	}
	if len(c.ApprovedYears) == 0 {
		c.ApprovedYears = []string{"2024", "2025"}
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 3 * time.Second
	}
	if c.DelayMax < c.DelayMin {
		c.DelayMax = c.DelayMin + 2*time.Second
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 30 * time.Second
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 10 * time.Second
	}
	if c.DropdownSettle <= 0 {
		c.DropdownSettle = 1500 * time.Millisecond
	}
	if c.TwoFactorWait <= 0 {
		c.TwoFactorWait = 2 * time.Minute
	}
	if c.TwoFactorPoll <= 0 {
		c.TwoFactorPoll = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 2 * time.Second
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = 5
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// politenessDelay sleeps a uniform random duration in [DelayMin, DelayMax],
// returning early only on context cancellation.
func (c *Config) politenessDelay(ctx context.Context) error {
	span := c.DelayMax - c.DelayMin
	d := c.DelayMin
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	return sleepCtx(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
