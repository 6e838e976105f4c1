// Crawl runner: a full portal walk into the persistent store, or a targeted
// incremental crawl driven by the vacancy PDF. Progress renders on stdout,
// logs go to stderr.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gemscout/cache"
	"gemscout/config"
	"gemscout/engine"
	"gemscout/progress"
	"gemscout/scrape"
	"gemscout/store"
	"gemscout/vacancy"
	"gemscout/vault"
)

func main() {
	var (
		configPath = flag.String("config", "gemscout.yaml", "configuration file")
		bulk       = flag.Bool("bulk", false, "full portal walk into the database instead of a targeted crawl")
		modules    = flag.String("modules", "", "comma-separated module codes (targeted crawl; defaults to the configured list)")
		reset      = flag.Bool("reset", false, "discard the checkpoint before a targeted crawl")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal("config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *bulk {
		runBulk(ctx, cfg, logger)
		return
	}
	runIncremental(ctx, cfg, logger, splitList(*modules), *reset)
}

// runBulk launches the crawl through the engine so job bookkeeping matches
// what the HTTP API produces, then follows the event stream until it closes.
func runBulk(ctx context.Context, cfg *config.Config, logger *slog.Logger) {
	st, err := store.Open(cfg.DatabasePath(), logger)
	if err != nil {
		fatal("store: %v", err)
	}
	defer st.Close()

	eng := engine.New(cfg, st,
		cache.New(cfg.CacheDir(), cfg.CacheTTL(), logger),
		vault.New(cfg.VaultDir()), logger)
	if _, err := eng.RecoverJobs(ctx); err != nil {
		fatal("job recovery: %v", err)
	}

	jobID, err := eng.StartBulkCrawl(ctx)
	if err != nil {
		if errors.Is(err, vault.ErrNoCredentials) {
			fatal("no portal credentials stored; run gemcreds first")
		}
		fatal("start crawl: %v", err)
	}
	fmt.Printf("crawl started: %s\n", jobID)

	events, ok := eng.CrawlEvents(jobID)
	if !ok {
		fatal("no event stream for job %s", jobID)
	}

	// Ctrl-C requests cancellation; the worker stops at the next university
	// boundary and the event stream closes on its own.
	go func() {
		<-ctx.Done()
		if err := eng.CancelCrawl(context.Background(), jobID); err != nil {
			logger.Warn("cancel crawl", "error", err)
		}
	}()

	progress.NewRenderer(os.Stdout).Run(events)

	job, err := eng.JobStatus(context.Background(), jobID)
	if err != nil {
		fatal("job status: %v", err)
	}
	fmt.Printf("job %s: %s\n", job.ID, job.Status)
	if job.Status != scrape.JobCompleted {
		os.Exit(1)
	}
}

// runIncremental derives crawl targets from the vacancy PDF and walks only
// those, resuming from the checkpoint if a previous run was interrupted.
func runIncremental(ctx context.Context, cfg *config.Config, logger *slog.Logger, modules []string, reset bool) {
	if len(modules) == 0 {
		modules = cfg.TargetModules
	}
	if len(modules) == 0 {
		fatal("no modules: pass -modules or set target_modules in the configuration")
	}

	creds, err := vault.New(cfg.VaultDir()).Load()
	if err != nil {
		if errors.Is(err, vault.ErrNoCredentials) {
			fatal("no portal credentials stored; run gemcreds first")
		}
		fatal("credentials: %v", err)
	}

	records, err := vacancy.ExtractFile(cfg.PDFFile, logger)
	if err != nil {
		fatal("vacancy pdf: %v", err)
	}
	groups := vacancy.GroupVariations(vacancy.Filter(records, vacancy.FilterOptions{
		Countries: cfg.TargetCountries,
		College:   cfg.StudentCollege,
	}))
	if len(groups) == 0 {
		fatal("no eligible universities in the vacancy list")
	}

	targets := make([]scrape.Target, 0, len(groups))
	for id, g := range groups {
		targets = append(targets, scrape.Target{ID: id, Name: g.UniversityName, Country: g.Country})
	}

	sink := scrape.NewSink(256)
	crawler := scrape.NewIncrementalCrawler(
		cfg.ScrapeConfig(logger),
		func() scrape.Portal {
			return scrape.NewNavigator(cfg.ScrapeConfig(logger), scrape.Credentials{
				Username: creds.Username,
				Password: creds.Password,
				Domain:   creds.Domain,
			})
		},
		scrape.NewCheckpointFile(cfg.CheckpointPath()),
		sink,
	)
	if reset {
		if err := crawler.Reset(); err != nil {
			fatal("reset checkpoint: %v", err)
		}
		fmt.Println("checkpoint discarded")
	}

	rendered := make(chan struct{})
	go func() {
		progress.NewRenderer(os.Stdout).Run(sink.Events())
		close(rendered)
	}()

	data, err := crawler.Run(ctx, targets, modules)
	sink.Close()
	<-rendered

	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("interrupted; checkpoint saved, rerun to resume")
			os.Exit(1)
		}
		fatal("crawl: %v", err)
	}
	fmt.Printf("crawled %d universities\n", len(data))
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "gemcrawl: "+format+"\n", args...)
	os.Exit(1)
}
