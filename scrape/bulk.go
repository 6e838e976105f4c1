package scrape

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// PortalFactory builds a fresh Portal per crawl run. Each run owns its
// browser lifecycle end to end.
type PortalFactory func() Portal

// BulkCrawler runs full-portal crawls in the background: enumerate every
// country and university, search each one, and replace the persistent
// store's contents. At most one crawl runs at a time.
type BulkCrawler struct {
	cfg    Config
	portal PortalFactory
	store  Store
	jobs   JobStore

	mu      sync.Mutex
	sinks   map[string]*Sink
	cancels map[string]context.CancelFunc
}

// NewBulkCrawler creates a bulk crawler.
func NewBulkCrawler(cfg Config, portal PortalFactory, store Store, jobs JobStore) *BulkCrawler {
	cfg.defaults()
	return &BulkCrawler{
		cfg:     cfg,
		portal:  portal,
		store:   store,
		jobs:    jobs,
		sinks:   make(map[string]*Sink),
		cancels: make(map[string]context.CancelFunc),
	}
}

// Start launches a crawl and returns its job ID immediately. The worker
// detaches from the caller's context; cancellation goes through Cancel.
// Returns ErrCrawlActive while another crawl is running.
func (b *BulkCrawler) Start(ctx context.Context) (string, error) {
	running, err := b.jobs.RunningJob(ctx)
	if err != nil {
		return "", fmt.Errorf("scrape: check running job: %w", err)
	}
	if running != nil {
		return "", ErrCrawlActive
	}

	jobID, err := b.jobs.CreateJob(ctx)
	if err != nil {
		return "", fmt.Errorf("scrape: create job: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	sink := NewSink(256)

	b.mu.Lock()
	b.sinks[jobID] = sink
	b.cancels[jobID] = cancel
	b.mu.Unlock()

	go b.run(runCtx, jobID, sink)
	return jobID, nil
}

// Cancel requests a crawl stop. The worker honors it at the next country or
// university boundary; mid-flight page work is not interrupted.
func (b *BulkCrawler) Cancel(ctx context.Context, jobID string) error {
	job, err := b.jobs.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return ErrJobTerminal
	}

	b.mu.Lock()
	cancel, ok := b.cancels[jobID]
	b.mu.Unlock()
	if !ok {
		// Job exists but has no live worker (crash leftover). Close it out
		// directly.
		return b.jobs.UpdateJob(ctx, jobID, JobUpdate{Status: ptr(JobCancelled)})
	}
	cancel()
	return nil
}

// Events returns the job's event stream. The channel closes when the crawl
// finishes. Second value is false for unknown jobs.
func (b *BulkCrawler) Events(jobID string) (<-chan Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sink, ok := b.sinks[jobID]
	if !ok {
		return nil, false
	}
	return sink.Events(), true
}

func (b *BulkCrawler) run(ctx context.Context, jobID string, sink *Sink) {
	log := b.cfg.Logger
	defer sink.Close()
	defer func() {
		b.mu.Lock()
		delete(b.cancels, jobID)
		b.mu.Unlock()
	}()

	// Job state must reach a terminal status in every path, panics included.
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("crawl panicked: %v", r)
			log.Error("scrape: bulk crawl panic", "job", jobID, "panic", r)
			sink.Emit(ErrorEvent{eventBase: base(jobID), Message: msg})
			b.failJob(jobID, msg)
		}
	}()

	portal := b.portal()
	defer portal.Close()

	sink.Emit(Started{eventBase: base(jobID)})
	if err := b.jobs.UpdateJob(ctx, jobID, JobUpdate{Status: ptr(JobRunning)}); err != nil {
		log.Error("scrape: mark job running", "job", jobID, "error", err)
	}

	if err := portal.Login(ctx); err != nil {
		b.abort(ctx, jobID, sink, fmt.Errorf("login: %w", err))
		return
	}

	index, err := portal.EnumerateCountries(ctx)
	if err != nil {
		b.abort(ctx, jobID, sink, fmt.Errorf("enumerate: %w", err))
		return
	}
	totalCountries := len(index.Countries)
	totalUniversities := index.TotalUniversities()
	sink.Emit(Discovery{
		eventBase:    base(jobID),
		Countries:    totalCountries,
		Universities: totalUniversities,
	})
	b.jobs.UpdateJob(ctx, jobID, JobUpdate{
		TotalCountries:    ptr(totalCountries),
		TotalUniversities: ptr(totalUniversities),
	})

	// A bulk crawl replaces the dataset wholesale.
	if err := b.store.ClearData(ctx); err != nil {
		b.abort(ctx, jobID, sink, fmt.Errorf("clear store: %w", err))
		return
	}

	var universitiesDone, totalMappings int
	for ci, country := range index.Countries {
		if ctx.Err() != nil {
			b.cancelJob(jobID)
			return
		}

		sink.Emit(CountryStart{
			eventBase:      base(jobID),
			Country:        country,
			CountryIndex:   ci + 1,
			TotalCountries: totalCountries,
		})
		b.jobs.UpdateJob(ctx, jobID, JobUpdate{CurrentCountry: ptr(country)})

		countryID, err := b.store.UpsertCountry(ctx, country)
		if err != nil {
			b.abort(ctx, jobID, sink, fmt.Errorf("upsert country %q: %w", country, err))
			return
		}

		for ui, university := range index.Universities[country] {
			if ctx.Err() != nil {
				b.cancelJob(jobID)
				return
			}

			sink.Emit(UniversityStart{
				eventBase:         base(jobID),
				Country:           country,
				University:        university,
				UniversityIndex:   ui + 1,
				TotalUniversities: totalUniversities,
			})
			b.jobs.UpdateJob(ctx, jobID, JobUpdate{CurrentUniversity: ptr(university)})

			universityID, err := b.store.UpsertUniversity(ctx, countryID, university)
			if err != nil {
				b.abort(ctx, jobID, sink, fmt.Errorf("upsert university %q: %w", university, err))
				return
			}

			grouped, err := searchWithRetries(ctx, &b.cfg, portal, university, country)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					b.cancelJob(jobID)
					return
				}
				// Per-university failures are absorbed as zero mappings so
				// one flaky page cannot sink hours of crawl work.
				log.Warn("scrape: university search failed",
					"university", university, "country", country, "error", err)
				sink.Emit(UniversityError{
					eventBase:  base(jobID),
					Country:    country,
					University: university,
					Message:    err.Error(),
				})
				grouped = nil
			}

			var flat []Mapping
			for _, ms := range grouped {
				flat = append(flat, ms...)
			}
			if len(flat) > 0 {
				n, err := b.store.BulkInsertMappings(ctx, universityID, flat)
				if err != nil {
					b.abort(ctx, jobID, sink, fmt.Errorf("insert mappings for %q: %w", university, err))
					return
				}
				totalMappings += n
			}

			universitiesDone++
			sink.Emit(UniversityComplete{
				eventBase:         base(jobID),
				Country:           country,
				University:        university,
				MappingCount:      len(flat),
				UniversitiesDone:  universitiesDone,
				TotalUniversities: totalUniversities,
			})
			b.jobs.UpdateJob(ctx, jobID, JobUpdate{CompletedUniversities: ptr(universitiesDone)})

			if err := b.cfg.politenessDelay(ctx); err != nil {
				b.cancelJob(jobID)
				return
			}
		}

		sink.Emit(CountryComplete{
			eventBase:      base(jobID),
			Country:        country,
			CountriesDone:  ci + 1,
			TotalCountries: totalCountries,
		})
		b.jobs.UpdateJob(ctx, jobID, JobUpdate{CompletedCountries: ptr(ci + 1)})
	}

	sink.Emit(Completed{
		eventBase:     base(jobID),
		Universities:  universitiesDone,
		TotalMappings: totalMappings,
	})
	if err := b.jobs.UpdateJob(context.Background(), jobID, JobUpdate{Status: ptr(JobCompleted)}); err != nil {
		log.Error("scrape: mark job completed", "job", jobID, "error", err)
	}
	log.Info("scrape: bulk crawl completed",
		"job", jobID, "universities", universitiesDone, "mappings", totalMappings)
}

// searchWithRetries runs one university search with bounded linear backoff.
func searchWithRetries(ctx context.Context, cfg *Config, portal Portal, university, country string) (map[string][]Mapping, error) {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxRetries; attempt++ {
		grouped, err := portal.SearchUniversityMappings(ctx, university, country)
		if err == nil {
			return grouped, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt < cfg.MaxRetries {
			wait := time.Duration(attempt) * cfg.RetryBackoff
			cfg.Logger.Debug("scrape: retrying search",
				"university", university, "attempt", attempt, "wait", wait)
			if err := sleepCtx(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, lastErr
}

func (b *BulkCrawler) abort(ctx context.Context, jobID string, sink *Sink, err error) {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		b.cancelJob(jobID)
		return
	}
	b.cfg.Logger.Error("scrape: bulk crawl failed", "job", jobID, "error", err)
	sink.Emit(ErrorEvent{eventBase: base(jobID), Message: err.Error()})
	b.failJob(jobID, err.Error())
}

func (b *BulkCrawler) failJob(jobID, msg string) {
	upd := JobUpdate{Status: ptr(JobFailed), ErrorMessage: ptr(msg)}
	if err := b.jobs.UpdateJob(context.Background(), jobID, upd); err != nil {
		b.cfg.Logger.Error("scrape: mark job failed", "job", jobID, "error", err)
	}
}

func (b *BulkCrawler) cancelJob(jobID string) {
	b.cfg.Logger.Info("scrape: bulk crawl cancelled", "job", jobID)
	if err := b.jobs.UpdateJob(context.Background(), jobID, JobUpdate{Status: ptr(JobCancelled)}); err != nil {
		b.cfg.Logger.Error("scrape: mark job cancelled", "job", jobID, "error", err)
	}
}

func ptr[T any](v T) *T { return &v }
