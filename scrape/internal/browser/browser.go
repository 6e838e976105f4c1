// Package browser manages the Chrome lifecycle for portal scraping: launch
// via Rod with anti-detection flags, stealth page creation, and guaranteed
// cleanup.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless runs Chrome without a window. Headed mode is needed when a
	// human must complete a 2FA prompt in the browser.
	Headless bool

	// WindowWidth/WindowHeight set the viewport. Defaults: 1920x1080.
	WindowWidth  int
	WindowHeight int

	// UserAgent overrides the browser user agent. Empty keeps a desktop
	// Chrome string; the identity provider rejects obvious bot agents.
	UserAgent string

	// PageLoadTimeout bounds navigations on pages opened by the manager.
	PageLoadTimeout time.Duration

	Logger *slog.Logger
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func (c *Config) defaults() {
	if c.WindowWidth <= 0 {
		c.WindowWidth = 1920
	}
	if c.WindowHeight <= 0 {
		c.WindowHeight = 1080
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.PageLoadTimeout <= 0 {
		c.PageLoadTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager manages one Chrome process. Thread-safe.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	closed  bool
}

// NewManager creates a browser Manager. Call Start to launch Chrome.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance) and returns the
// Rod browser handle.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if m.browser != nil {
		return m.browser, nil
	}

	b, err := m.launch()
	if err != nil {
		return nil, err
	}
	m.browser = b
	return b, nil
}

// Browser returns the current Rod browser handle, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// NewPage opens a stealth page and navigates it to pageURL, waiting for the
// load event within the configured page-load timeout. A timeout on the load
// wait is logged, not fatal: slow third-party assets must not fail the
// whole navigation.
func (m *Manager) NewPage(ctx context.Context, pageURL string) (*rod.Page, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create page: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, m.cfg.PageLoadTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		m.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}

	return page, nil
}

// Close shuts down Chrome. Safe to call multiple times; guaranteed cleanup
// is the caller's contract with the orchestrator.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true

	if m.browser != nil {
		m.browser.Close()
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	return nil
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	var wsURL string
	if m.cfg.RemoteURL != "" {
		wsURL = m.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(m.cfg.Headless).
			Set("no-sandbox").
			Set("disable-dev-shm-usage").
			Set("disable-gpu").
			Set("window-size", fmt.Sprintf("%d,%d", m.cfg.WindowWidth, m.cfg.WindowHeight)).
			Set("user-agent", m.cfg.UserAgent).
			// Anti-detection flags.
			Set("disable-blink-features", "AutomationControlled")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "headless", m.cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}

	return b, nil
}
