package engine

import (
	"context"

	"gemscout/scrape"
	"gemscout/store"
	"gemscout/vault"
)

// Stats is the operational summary exposed on the stats endpoints.
type Stats struct {
	Dataset        store.Stats `json:"dataset"`
	LatestJob      *scrape.Job `json:"latest_job,omitempty"`
	HasCredentials bool        `json:"has_credentials"`
}

// Stats reports dataset counts, the most recent crawl job, and whether
// credentials are configured.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	ds, err := e.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	latest, err := e.store.LatestJob(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		Dataset:        ds,
		LatestJob:      latest,
		HasCredentials: e.vault.Exists(),
	}, nil
}

// StartBulkCrawl launches a full-portal crawl and returns its job ID.
// Credentials are verified up front so the failure surfaces here, not
// minutes later inside the worker.
func (e *Engine) StartBulkCrawl(ctx context.Context) (string, error) {
	if _, err := e.vault.Load(); err != nil {
		return "", err
	}
	return e.bulk.Start(ctx)
}

// CancelCrawl requests a stop of the given crawl job.
func (e *Engine) CancelCrawl(ctx context.Context, jobID string) error {
	return e.bulk.Cancel(ctx, jobID)
}

// CrawlEvents returns the live event stream of a crawl job.
func (e *Engine) CrawlEvents(jobID string) (<-chan scrape.Event, bool) {
	return e.bulk.Events(jobID)
}

// JobStatus returns one crawl job.
func (e *Engine) JobStatus(ctx context.Context, jobID string) (*scrape.Job, error) {
	return e.store.GetJob(ctx, jobID)
}

// LatestJob returns the most recent crawl job, nil if none ever ran.
func (e *Engine) LatestJob(ctx context.Context) (*scrape.Job, error) {
	return e.store.LatestJob(ctx)
}

// ClearCache drops every cached search result and returns the count.
func (e *Engine) ClearCache() (int, error) {
	return e.cache.Clear()
}

// RecoverJobs fails over crawl jobs left running by a previous process.
// Called once at startup.
func (e *Engine) RecoverJobs(ctx context.Context) (int, error) {
	return e.store.ForceCancelStaleJobs(ctx)
}

// ResetCheckpoint discards the incremental crawl checkpoint.
func (e *Engine) ResetCheckpoint() error {
	return scrape.NewCheckpointFile(e.cfg.CheckpointPath()).Reset()
}

// Credentials exposes the vault for the credentials admin surface.
func (e *Engine) Credentials() *vault.Vault { return e.vault }
