package scrape

import (
	"context"
	"fmt"
	"strings"
)

// IncrementalCrawler searches a targeted set of universities for a targeted
// set of home modules, checkpointing as it goes so an interrupted run
// resumes instead of restarting. Used by the on-demand discovery pipeline
// when the persistent store cannot answer instantly.
type IncrementalCrawler struct {
	cfg        Config
	portal     PortalFactory
	checkpoint *CheckpointFile
	sink       *Sink
}

// NewIncrementalCrawler creates an incremental crawler. sink may be nil when
// no progress reporting is wanted.
func NewIncrementalCrawler(cfg Config, portal PortalFactory, checkpoint *CheckpointFile, sink *Sink) *IncrementalCrawler {
	cfg.defaults()
	return &IncrementalCrawler{cfg: cfg, portal: portal, checkpoint: checkpoint, sink: sink}
}

// Reset discards the checkpoint so the next Run starts from scratch.
func (c *IncrementalCrawler) Reset() error {
	return c.checkpoint.Reset()
}

// Run crawls the targets and returns mappings keyed by university ID then
// home module code. Universities completed by an earlier interrupted run are
// skipped. A university whose retries are exhausted is recorded with zero
// mappings and the crawl moves on. The checkpoint is saved periodically and
// once more at the end; on context cancellation the partial state is saved
// before returning.
func (c *IncrementalCrawler) Run(ctx context.Context, targets []Target, modules []string) (map[string]map[string][]Mapping, error) {
	log := c.cfg.Logger

	cp, err := c.checkpoint.Load()
	if err != nil {
		return nil, err
	}

	targets = append([]Target(nil), targets...)
	SortTargets(targets)

	pending := 0
	for _, t := range targets {
		if !cp.Completed(t.ID) {
			pending++
		}
	}
	if pending == 0 {
		log.Info("scrape: all targets already in checkpoint", "targets", len(targets))
		return cp.MappingData, nil
	}
	if pending < len(targets) {
		log.Info("scrape: resuming from checkpoint",
			"done", len(targets)-pending, "pending", pending)
	}

	wanted := make(map[string]bool, len(modules))
	for _, m := range modules {
		wanted[strings.ToUpper(m)] = true
	}

	portal := c.portal()
	defer portal.Close()

	if err := portal.Login(ctx); err != nil {
		return nil, err
	}

	c.emit(Started{eventBase: base("")})
	sinceSave := 0
	done := len(targets) - pending
	for _, t := range targets {
		if cp.Completed(t.ID) {
			continue
		}
		if err := ctx.Err(); err != nil {
			c.checkpoint.Save(cp)
			return cp.MappingData, err
		}

		c.emit(UniversityStart{
			eventBase:         base(""),
			Country:           t.Country,
			University:        t.Name,
			UniversityIndex:   done + 1,
			TotalUniversities: len(targets),
		})

		grouped, err := searchWithRetries(ctx, &c.cfg, portal, t.Name, t.Country)
		if err != nil {
			if ctx.Err() != nil {
				c.checkpoint.Save(cp)
				return cp.MappingData, ctx.Err()
			}
			log.Warn("scrape: target search exhausted retries",
				"university", t.Name, "country", t.Country, "error", err)
			c.emit(UniversityError{
				eventBase:  base(""),
				Country:    t.Country,
				University: t.Name,
				Message:    err.Error(),
			})
			grouped = nil
		}

		kept := make(map[string][]Mapping)
		for code, ms := range grouped {
			if len(wanted) == 0 || wanted[code] {
				kept[code] = ms
			}
		}
		cp.MappingData[t.ID] = kept
		cp.CompletedIDs = append(cp.CompletedIDs, t.ID)
		done++
		sinceSave++

		c.emit(UniversityComplete{
			eventBase:         base(""),
			Country:           t.Country,
			University:        t.Name,
			MappingCount:      countMappings(kept),
			UniversitiesDone:  done,
			TotalUniversities: len(targets),
		})

		if sinceSave >= c.cfg.CheckpointEvery {
			if err := c.checkpoint.Save(cp); err != nil {
				log.Warn("scrape: checkpoint save failed", "error", err)
			} else {
				sinceSave = 0
			}
		}

		if err := c.cfg.politenessDelay(ctx); err != nil {
			c.checkpoint.Save(cp)
			return cp.MappingData, err
		}
	}

	if err := c.checkpoint.Save(cp); err != nil {
		return cp.MappingData, fmt.Errorf("scrape: final checkpoint: %w", err)
	}
	c.emit(Completed{
		eventBase:     base(""),
		Universities:  done,
		TotalMappings: totalMappings(cp.MappingData),
	})
	log.Info("scrape: incremental crawl finished",
		"universities", done, "mappings", totalMappings(cp.MappingData))
	return cp.MappingData, nil
}

func (c *IncrementalCrawler) emit(e Event) {
	if c.sink != nil {
		c.sink.Emit(e)
	}
}

func countMappings(byModule map[string][]Mapping) int {
	n := 0
	for _, ms := range byModule {
		n += len(ms)
	}
	return n
}

func totalMappings(data map[string]map[string][]Mapping) int {
	n := 0
	for _, byModule := range data {
		n += countMappings(byModule)
	}
	return n
}
