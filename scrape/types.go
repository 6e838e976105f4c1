// Package scrape drives the module-equivalency portal: an authenticated
// browser session, a dropdown-driven navigator, and two orchestrators (bulk
// crawl into the persistent store, checkpointed incremental crawl for one
// targeted query).
package scrape

import (
	"context"
	"sort"
)

// Mapping is one approved course equivalency scraped from the portal's
// result table. Only rows with an approved status inside the configured
// recent-years window survive parsing; everything else is dropped before it
// reaches this type.
type Mapping struct {
	HomeModuleCode    string `json:"home_module_code"`
	HomeModuleName    string `json:"home_module_name"`
	HomeModuleType    string `json:"home_module_type"`
	PartnerModuleCode string `json:"partner_module_code"`
	PartnerModuleName string `json:"partner_module_name"`
	AcademicUnits     string `json:"academic_units"`
	ApprovalStatus    string `json:"approval_status"`
	ApprovalYear      string `json:"approval_year"`
	Semester          string `json:"semester"`
}

// CountryIndex maps country names to the universities the portal's own
// selectors expose, in selector-document order. Sorting is a presentation
// concern of the caller.
type CountryIndex struct {
	Countries    []string            `json:"countries"`
	Universities map[string][]string `json:"universities"`
}

// TotalUniversities counts all universities across countries.
func (ix CountryIndex) TotalUniversities() int {
	n := 0
	for _, unis := range ix.Universities {
		n += len(unis)
	}
	return n
}

// Target is one university to search in an incremental crawl.
type Target struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Country string `json:"country"`
}

// SortTargets orders targets by ID for deterministic iteration.
func SortTargets(targets []Target) {
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID < targets[j].ID })
}

// JobStatus is the lifecycle state of a crawl job. Transitions are
// monotonic: pending -> running -> one of the terminal states. Nothing
// leaves a terminal state.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed || s == JobCancelled
}

// Job is the durable, crash-recoverable record of one crawl.
// Timestamps are Unix milliseconds; zero means unset.
type Job struct {
	ID                    string    `json:"id"`
	Status                JobStatus `json:"status"`
	TotalCountries        int       `json:"total_countries"`
	CompletedCountries    int       `json:"completed_countries"`
	TotalUniversities     int       `json:"total_universities"`
	CompletedUniversities int       `json:"completed_universities"`
	CurrentCountry        string    `json:"current_country"`
	CurrentUniversity     string    `json:"current_university"`
	StartedAt             int64     `json:"started_at"`
	CompletedAt           int64     `json:"completed_at"`
	ErrorMessage          string    `json:"error_message"`
}

// JobUpdate carries partial job mutations. Nil fields are left untouched.
type JobUpdate struct {
	Status                *JobStatus
	TotalCountries        *int
	CompletedCountries    *int
	TotalUniversities     *int
	CompletedUniversities *int
	CurrentCountry        *string
	CurrentUniversity     *string
	ErrorMessage          *string
}

// Portal is what the orchestrators need from the browser layer: one login,
// one enumeration, and per-university searches. Implemented by Navigator;
// faked in tests.
type Portal interface {
	Login(ctx context.Context) error
	EnumerateCountries(ctx context.Context) (CountryIndex, error)
	SearchUniversityMappings(ctx context.Context, university, country string) (map[string][]Mapping, error)
	Close() error
}

// Store is the persistent destination of a bulk crawl.
type Store interface {
	ClearData(ctx context.Context) error
	UpsertCountry(ctx context.Context, name string) (int64, error)
	UpsertUniversity(ctx context.Context, countryID int64, name string) (int64, error)
	BulkInsertMappings(ctx context.Context, universityID int64, mappings []Mapping) (int, error)
}

// JobStore tracks crawl jobs across process restarts.
type JobStore interface {
	CreateJob(ctx context.Context) (string, error)
	UpdateJob(ctx context.Context, id string, upd JobUpdate) error
	GetJob(ctx context.Context, id string) (*Job, error)
	RunningJob(ctx context.Context) (*Job, error)
}
