package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gemscout/cache"
	"gemscout/config"
	"gemscout/dbopen"
	"gemscout/scrape"
	"gemscout/store"
	"gemscout/vacancy"
	"gemscout/vault"
)

func testEngine(t *testing.T) (*Engine, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.TargetModules = nil
	cfg.TargetCountries = nil
	cfg.StudentCollege = ""

	st := store.New(dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)), logger)
	ca := cache.New(cfg.CacheDir(), time.Hour, logger)
	vt := vault.New(cfg.VaultDir())
	return New(cfg, st, ca, vt, logger), st
}

func seed(t *testing.T, st *store.Store, country, university string, modules ...string) {
	t.Helper()
	ctx := context.Background()
	cid, err := st.UpsertCountry(ctx, country)
	if err != nil {
		t.Fatalf("upsert country: %v", err)
	}
	uid, err := st.UpsertUniversity(ctx, cid, university)
	if err != nil {
		t.Fatalf("upsert university: %v", err)
	}
	ms := make([]scrape.Mapping, 0, len(modules))
	for _, m := range modules {
		ms = append(ms, scrape.Mapping{
			HomeModuleCode: m,
			ApprovalStatus: "Approved",
			ApprovalYear:   "2024",
		})
	}
	if _, err := st.BulkInsertMappings(ctx, uid, ms); err != nil {
		t.Fatalf("insert mappings: %v", err)
	}
}

func TestSearch_DatabasePath(t *testing.T) {
	// WHAT: With a populated dataset, Search answers from the database,
	// filters by the mappable floor, and ranks the survivors.
	// WHY: The instant path is the common case once a bulk crawl has run;
	// it must not touch the portal at all.
	e, st := testEngine(t)
	seed(t, st, "France", "Sorbonne", "CS2040", "MA1001")
	seed(t, st, "France", "Lyon", "CS2040")
	seed(t, st, "Japan", "Kyoto", "CS2040", "MA1001")

	res, err := e.Search(context.Background(), SearchRequest{
		Modules:     []string{"cs2040", "ma1001"},
		MinMappable: 2,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if res.Source != "database" {
		t.Fatalf("source %q, want database", res.Source)
	}
	if len(res.Universities) != 2 {
		t.Fatalf("expected 2 qualifying universities, got %d: %+v", len(res.Universities), res.Universities)
	}
	// Country-major order: France before Japan.
	if res.Universities[0].Name != "Sorbonne" || res.Universities[1].Name != "Kyoto" {
		t.Fatalf("unexpected order: %q, %q", res.Universities[0].Name, res.Universities[1].Name)
	}
	if res.Universities[0].Rank != 1 || res.Universities[0].Coverage != 100 {
		t.Fatalf("first candidate: %+v", res.Universities[0])
	}
	if res.Universities[0].Scores == nil {
		t.Fatal("scores not attached")
	}
	if len(res.Summary) != 2 {
		t.Fatalf("summary countries: %v", res.Summary)
	}
}

func TestSearch_CacheHit(t *testing.T) {
	// WHAT: A repeated query is served from the cache with source "cache";
	// force_refresh bypasses it.
	e, st := testEngine(t)
	seed(t, st, "France", "Sorbonne", "CS2040")

	req := SearchRequest{Modules: []string{"CS2040"}, MinMappable: 1}
	first, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("first search: %v", err)
	}
	if first.Source != "database" {
		t.Fatalf("first source %q", first.Source)
	}

	second, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("second search: %v", err)
	}
	if second.Source != "cache" {
		t.Fatalf("second source %q, want cache", second.Source)
	}
	if len(second.Universities) != len(first.Universities) {
		t.Fatalf("cached result differs: %d vs %d", len(second.Universities), len(first.Universities))
	}

	req.ForceRefresh = true
	third, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("refresh search: %v", err)
	}
	if third.Source != "database" {
		t.Fatalf("refresh source %q, want database", third.Source)
	}
}

func TestSearch_DirectoryBuiltOnce(t *testing.T) {
	// WHAT: The vacancy directory is parsed from the PDF once per engine;
	// repeated database answers reuse the same lookup by reference.
	// WHY: PDF extraction is the most expensive step of a database answer
	// and its result never changes within a process.
	e, st := testEngine(t)
	seed(t, st, "France", "Sorbonne", "CS2040")

	extractions := 0
	e.cfg.PDFFile = "vacancies.pdf"
	e.extract = func(string) ([]vacancy.Record, error) {
		extractions++
		return []vacancy.Record{{
			Country:        "France",
			UniversityCode: "SOR",
			UniversityName: "Sorbonne",
			Sem1Spots:      4,
			MinCGPA:        3.2,
		}}, nil
	}

	req := SearchRequest{Modules: []string{"cs2040"}, MinMappable: 1, ForceRefresh: true}
	for i := 0; i < 3; i++ {
		res, err := e.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("search %d: %v", i, err)
		}
		if len(res.Universities) != 1 || res.Universities[0].Sem1Spots != 4 {
			t.Fatalf("search %d not enriched: %+v", i, res.Universities)
		}
	}

	if extractions != 1 {
		t.Fatalf("pdf extracted %d times, want 1", extractions)
	}
}

func TestSearch_NoModules(t *testing.T) {
	e, _ := testEngine(t)
	if _, err := e.Search(context.Background(), SearchRequest{}); !errors.Is(err, ErrNoModules) {
		t.Fatalf("expected ErrNoModules, got %v", err)
	}
}

func TestStartBulkCrawl_RequiresCredentials(t *testing.T) {
	// WHAT: Launching a crawl without stored credentials fails immediately
	// with the vault sentinel instead of minutes later in the worker.
	e, _ := testEngine(t)
	if _, err := e.StartBulkCrawl(context.Background()); !errors.Is(err, vault.ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}

func TestStats(t *testing.T) {
	e, st := testEngine(t)
	seed(t, st, "France", "Sorbonne", "CS2040")

	stats, err := e.Stats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Dataset.Universities != 1 || stats.Dataset.Mappings != 1 {
		t.Fatalf("dataset stats: %+v", stats.Dataset)
	}
	if stats.HasCredentials {
		t.Fatal("no credentials were stored")
	}
	if stats.LatestJob != nil {
		t.Fatalf("no job ever ran: %+v", stats.LatestJob)
	}
}

func TestRecoverJobs(t *testing.T) {
	// WHAT: Startup recovery closes out jobs orphaned by a crash.
	e, st := testEngine(t)
	ctx := context.Background()

	id, err := st.CreateJob(ctx)
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	running := scrape.JobRunning
	st.UpdateJob(ctx, id, scrape.JobUpdate{Status: &running})

	n, err := e.RecoverJobs(ctx)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 {
		t.Fatalf("recovered %d jobs, want 1", n)
	}
	job, _ := st.GetJob(ctx, id)
	if job.Status != scrape.JobCancelled {
		t.Fatalf("orphaned job status = %q, want %q", job.Status, scrape.JobCancelled)
	}
}
