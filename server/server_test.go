package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gemscout/cache"
	"gemscout/config"
	"gemscout/dbopen"
	"gemscout/engine"
	"gemscout/scrape"
	"gemscout/store"
	"gemscout/vault"
)

func testServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.TargetModules = nil
	cfg.TargetCountries = nil
	cfg.StudentCollege = ""

	st := store.New(dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema)), logger)
	e := engine.New(cfg, st,
		cache.New(cfg.CacheDir(), time.Hour, logger),
		vault.New(cfg.VaultDir()), logger)

	ts := httptest.NewServer(New(e, logger).Router())
	t.Cleanup(ts.Close)
	return ts, st
}

func seedMapping(t *testing.T, st *store.Store, country, university, module string) {
	t.Helper()
	ctx := context.Background()
	cid, _ := st.UpsertCountry(ctx, country)
	uid, _ := st.UpsertUniversity(ctx, cid, university)
	_, err := st.BulkInsertMappings(ctx, uid, []scrape.Mapping{{
		HomeModuleCode: module,
		ApprovalStatus: "Approved",
		ApprovalYear:   "2024",
	}})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := testServer(t)
	res, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	if got := res.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("hardening headers not applied: %q", got)
	}
}

func TestSearchEndpoint(t *testing.T) {
	// WHAT: POST /api/search answers from the populated dataset with a
	// ranked body.
	ts, st := testServer(t)
	seedMapping(t, st, "France", "Sorbonne", "CS2040")

	body, _ := json.Marshal(map[string]any{
		"modules":      []string{"CS2040"},
		"min_mappable": 1,
	})
	res, err := http.Post(ts.URL+"/api/search", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}

	var out engine.SearchResult
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Source != "database" || len(out.Universities) != 1 {
		t.Fatalf("result: %+v", out)
	}
	if out.Universities[0].Name != "Sorbonne" {
		t.Fatalf("candidate: %+v", out.Universities[0])
	}
}

func TestSearchEndpoint_BadRequests(t *testing.T) {
	// WHAT: Malformed bodies and module-less queries are 400s.
	ts, _ := testServer(t)

	res, _ := http.Post(ts.URL+"/api/search", "application/json", bytes.NewReader([]byte("{oops")))
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", res.StatusCode)
	}

	res, _ = http.Post(ts.URL+"/api/search", "application/json", bytes.NewReader([]byte("{}")))
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("no modules: status %d", res.StatusCode)
	}
}

func TestScrapeStart_WithoutCredentials(t *testing.T) {
	// WHAT: Starting a crawl without stored credentials fails with 412.
	// WHY: The operator should learn about missing setup before a browser
	// ever launches.
	ts, _ := testServer(t)
	res, err := http.Post(ts.URL+"/api/scrape/start", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusPreconditionFailed {
		t.Fatalf("status %d, want 412", res.StatusCode)
	}
}

func TestScrapeStatus_UnknownJob(t *testing.T) {
	ts, _ := testServer(t)
	res, _ := http.Get(ts.URL + "/api/scrape/status/job_missing")
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", res.StatusCode)
	}
}

func TestScrapeLatest_NoJobs(t *testing.T) {
	ts, _ := testServer(t)
	res, _ := http.Get(ts.URL + "/api/scrape/latest")
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", res.StatusCode)
	}
}

func TestScrapeProgress_UnknownJob(t *testing.T) {
	ts, _ := testServer(t)
	res, _ := http.Get(ts.URL + "/api/scrape/progress/job_missing")
	res.Body.Close()
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", res.StatusCode)
	}
}

func TestCacheClear(t *testing.T) {
	ts, _ := testServer(t)
	res, err := http.Post(ts.URL+"/api/cache/clear", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var out map[string]int
	json.NewDecoder(res.Body).Decode(&out)
	if out["cleared"] != 0 {
		t.Fatalf("cleared %d entries from an empty cache", out["cleared"])
	}
}

func TestStatsEndpoint(t *testing.T) {
	ts, st := testServer(t)
	seedMapping(t, st, "Japan", "Kyoto", "MA1001")

	res, err := http.Get(ts.URL + "/api/stats")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status %d", res.StatusCode)
	}
	var out engine.Stats
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Dataset.Mappings != 1 || out.HasCredentials {
		t.Fatalf("stats: %+v", out)
	}
}
