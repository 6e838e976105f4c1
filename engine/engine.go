// Package engine is the discovery pipeline: answer "where can I exchange
// with my modules" from the result cache, the persistent dataset, or a
// targeted incremental crawl, in that order of preference.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gemscout/cache"
	"gemscout/config"
	"gemscout/rank"
	"gemscout/scrape"
	"gemscout/store"
	"gemscout/vacancy"
	"gemscout/vault"
)

// ErrNoModules is returned when a search names no modules and the
// configuration has no default list either.
var ErrNoModules = errors.New("engine: no modules requested")

// Engine wires the pipeline's layers together.
type Engine struct {
	cfg   *config.Config
	store *store.Store
	cache *cache.Cache
	vault *vault.Vault
	bulk  *scrape.BulkCrawler
	log   *slog.Logger

	// dir is built once on first use and shared by reference after.
	dirOnce sync.Once
	dir     *vacancy.Directory

	// portalFactory and extract are swapped for fakes in tests.
	portalFactory func(scrape.Credentials) scrape.Portal
	extract       func(path string) ([]vacancy.Record, error)
}

// New creates the engine.
func New(cfg *config.Config, st *store.Store, ca *cache.Cache, vt *vault.Vault, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		cfg:   cfg,
		store: st,
		cache: ca,
		vault: vt,
		log:   logger,
	}
	e.portalFactory = func(creds scrape.Credentials) scrape.Portal {
		return scrape.NewNavigator(cfg.ScrapeConfig(logger), creds)
	}
	e.extract = func(path string) ([]vacancy.Record, error) {
		return vacancy.ExtractFile(path, logger)
	}
	e.bulk = scrape.NewBulkCrawler(cfg.ScrapeConfig(logger), e.newBulkPortal, st, st)
	return e
}

func (e *Engine) newBulkPortal() scrape.Portal {
	creds, err := e.vault.Load()
	if err != nil {
		// StartBulkCrawl verified credentials before launching; hitting
		// this means they were deleted mid-flight. Login will fail cleanly.
		e.log.Error("engine: credentials unavailable for crawl", "error", err)
	}
	return e.portalFactory(scrape.Credentials{
		Username: creds.Username,
		Password: creds.Password,
		Domain:   creds.Domain,
	})
}

// SearchRequest is one discovery query. Empty fields fall back to the
// configured defaults.
type SearchRequest struct {
	Modules      []string `json:"modules"`
	Countries    []string `json:"countries,omitempty"`
	College      string   `json:"college,omitempty"`
	MinMappable  int      `json:"min_mappable,omitempty"`
	TopN         int      `json:"top_n,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

func (r *SearchRequest) applyDefaults(cfg *config.Config) {
	if len(r.Modules) == 0 {
		r.Modules = cfg.TargetModules
	}
	if len(r.Countries) == 0 {
		r.Countries = cfg.TargetCountries
	}
	if r.College == "" {
		r.College = cfg.StudentCollege
	}
	if r.MinMappable <= 0 {
		r.MinMappable = cfg.MinMappableModules
	}
	if r.TopN <= 0 {
		r.TopN = 15
	}
}

// SearchResult is the ranked answer.
type SearchResult struct {
	Source       string                         `json:"source"`
	GeneratedAt  time.Time                      `json:"generated_at"`
	Universities []rank.University              `json:"universities"`
	Top          []rank.University              `json:"top"`
	Summary      map[string]rank.CountrySummary `json:"summary"`
}

// Search answers a discovery query. Resolution order: fresh cache entry,
// then the populated persistent dataset, then a targeted incremental crawl.
// The crawl path can take minutes; callers pass a context sized for it.
func (e *Engine) Search(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	req.applyDefaults(e.cfg)
	if len(req.Modules) == 0 {
		return nil, ErrNoModules
	}

	key := cache.Key(req.Countries, req.Modules, req.College)
	if !req.ForceRefresh {
		var cached SearchResult
		if e.cache.Get(key, &cached) {
			cached.Source = "cache"
			e.log.Info("engine: search served from cache", "key", key)
			return &cached, nil
		}
	}

	populated, err := e.store.IsPopulated(ctx)
	if err != nil {
		return nil, err
	}

	var (
		unis   []rank.University
		source string
	)
	if populated {
		unis, err = e.searchDatabase(ctx, req)
		source = "database"
	} else {
		unis, err = e.searchScrape(ctx, req)
		source = "scrape"
	}
	if err != nil {
		return nil, err
	}

	rank.Score(unis)
	ranked := rank.FilterAndRank(unis, req.MinMappable)
	result := &SearchResult{
		Source:       source,
		GeneratedAt:  time.Now(),
		Universities: ranked,
		Top:          rank.TopN(ranked, req.TopN),
		Summary:      rank.SummarizeByCountry(ranked),
	}

	if err := e.cache.Put(key, result); err != nil {
		e.log.Warn("engine: cache write failed", "error", err)
	}
	e.log.Info("engine: search complete",
		"source", source, "candidates", len(ranked), "modules", len(req.Modules))
	return result, nil
}

// searchDatabase answers from the bulk-crawled dataset, enriching each
// university with vacancy data looked up in the PDF directory.
func (e *Engine) searchDatabase(ctx context.Context, req SearchRequest) ([]rank.University, error) {
	rows, err := e.store.QueryByModules(ctx, req.Modules, req.Countries)
	if err != nil {
		return nil, err
	}

	dir := e.loadDirectory()
	unis := make([]rank.University, 0, len(rows))
	for _, row := range rows {
		u := rank.University{
			ID:             fmt.Sprintf("db_%d", row.UniversityID),
			Name:           row.University,
			Country:        row.Country,
			VariationCount: 1,
			Mappable:       make(map[string][]scrape.Mapping),
		}
		if dir != nil {
			enr := dir.Lookup(row.University, row.Country)
			u.Sem1Spots = enr.Sem1Spots
			u.MinCGPA = enr.MinCGPA
			u.Remarks = enr.Remarks
		}

		for _, code := range upperAll(req.Modules) {
			if ms := row.Modules[code]; len(ms) > 0 {
				u.Mappable[code] = ms
			} else {
				u.Unmappable = append(u.Unmappable, code)
			}
		}
		u.MappableCount = len(u.Mappable)
		if len(req.Modules) > 0 {
			u.Coverage = float64(u.MappableCount) / float64(len(req.Modules)) * 100
		}
		unis = append(unis, u)
	}
	return unis, nil
}

// searchScrape extracts the vacancy PDF, derives crawl targets, runs the
// checkpointed incremental crawl, and reconciles the two sides.
func (e *Engine) searchScrape(ctx context.Context, req SearchRequest) ([]rank.University, error) {
	records, err := e.extract(e.cfg.PDFFile)
	if err != nil {
		return nil, fmt.Errorf("engine: vacancy extraction: %w", err)
	}
	filtered := vacancy.Filter(records, vacancy.FilterOptions{
		Countries: req.Countries,
		College:   req.College,
	})
	groups := vacancy.GroupVariations(filtered)
	if len(groups) == 0 {
		e.log.Warn("engine: no eligible universities in vacancy list",
			"countries", req.Countries, "college", req.College)
		return nil, nil
	}

	creds, err := e.vault.Load()
	if err != nil {
		return nil, err
	}

	targets := make([]scrape.Target, 0, len(groups))
	for id, g := range groups {
		targets = append(targets, scrape.Target{
			ID:      id,
			Name:    g.UniversityName,
			Country: g.Country,
		})
	}

	crawler := scrape.NewIncrementalCrawler(
		e.cfg.ScrapeConfig(e.log),
		func() scrape.Portal {
			return e.portalFactory(scrape.Credentials{
				Username: creds.Username,
				Password: creds.Password,
				Domain:   creds.Domain,
			})
		},
		scrape.NewCheckpointFile(e.cfg.CheckpointPath()),
		nil,
	)
	data, err := crawler.Run(ctx, targets, req.Modules)
	if err != nil {
		return nil, err
	}

	return rank.Combine(groups, data, req.Modules), nil
}

// loadDirectory builds the vacancy lookup from the configured PDF, exactly
// once per engine; every later call returns the same reference. A missing or
// unreadable PDF degrades to nil; database answers then carry no spots or
// CGPA enrichment.
func (e *Engine) loadDirectory() *vacancy.Directory {
	e.dirOnce.Do(func() {
		if e.cfg.PDFFile == "" {
			return
		}
		records, err := e.extract(e.cfg.PDFFile)
		if err != nil {
			e.log.Warn("engine: vacancy pdf unavailable, answers unenriched", "error", err)
			return
		}
		e.dir = vacancy.NewDirectory(records, e.log)
	})
	return e.dir
}

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(s)
	}
	return out
}
