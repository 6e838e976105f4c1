package scrape

import (
	"sync"
	"time"
)

// Event is the closed set of progress notifications a crawl emits. Consumers
// type-switch over the concrete variants; each variant carries only the
// fields relevant to it. Ordering within one job is FIFO.
type Event interface {
	isEvent()
	EventJobID() string
}

type eventBase struct {
	JobID string    `json:"job_id"`
	At    time.Time `json:"at"`
}

func (e eventBase) isEvent()           {}
func (e eventBase) EventJobID() string { return e.JobID }

func base(jobID string) eventBase {
	return eventBase{JobID: jobID, At: time.Now()}
}

// Started signals that the crawl's worker is up and logging in.
type Started struct {
	eventBase
}

// Discovery reports the enumerated totals before iteration begins.
type Discovery struct {
	eventBase
	Countries    int `json:"countries"`
	Universities int `json:"universities"`
}

// CountryStart marks the beginning of one country's walk.
type CountryStart struct {
	eventBase
	Country        string `json:"country"`
	CountryIndex   int    `json:"country_index"`
	TotalCountries int    `json:"total_countries"`
}

// UniversityStart marks the beginning of one university's search.
type UniversityStart struct {
	eventBase
	Country           string `json:"country"`
	University        string `json:"university"`
	UniversityIndex   int    `json:"university_index"`
	TotalUniversities int    `json:"total_universities"`
}

// UniversityComplete reports one university's result.
type UniversityComplete struct {
	eventBase
	Country           string `json:"country"`
	University        string `json:"university"`
	MappingCount      int    `json:"mapping_count"`
	UniversitiesDone  int    `json:"universities_done"`
	TotalUniversities int    `json:"total_universities"`
}

// UniversityError reports a per-item failure that was absorbed (retries
// exhausted, recorded as zero mappings). It never aborts the crawl.
type UniversityError struct {
	eventBase
	Country    string `json:"country"`
	University string `json:"university"`
	Message    string `json:"message"`
}

// CountryComplete marks the end of one country's walk.
type CountryComplete struct {
	eventBase
	Country        string `json:"country"`
	CountriesDone  int    `json:"countries_done"`
	TotalCountries int    `json:"total_countries"`
}

// Completed signals a successful crawl.
type Completed struct {
	eventBase
	Universities  int `json:"universities"`
	TotalMappings int `json:"total_mappings"`
}

// ErrorEvent signals a job-level failure; the job is marked failed.
type ErrorEvent struct {
	eventBase
	Message string `json:"message"`
}

// Sink delivers events FIFO through a buffered channel. Producer is the
// crawl worker, consumer is whatever reports progress upstream. When the
// buffer is full events are dropped rather than blocking the crawl; the
// drop count is observable.
type Sink struct {
	ch chan Event

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewSink creates a sink with the given buffer size (minimum 1).
func NewSink(buffer int) *Sink {
	if buffer < 1 {
		buffer = 1
	}
	return &Sink{ch: make(chan Event, buffer)}
}

// Emit enqueues an event. Never blocks; drops when the buffer is full or
// the sink is closed.
func (s *Sink) Emit(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped++
		return
	}
	select {
	case s.ch <- e:
	default:
		s.dropped++
	}
}

// Events returns the receive side. Closed when the producer is done.
func (s *Sink) Events() <-chan Event { return s.ch }

// Dropped returns how many events were discarded due to a full buffer.
func (s *Sink) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close marks the sink done and closes the channel. Safe to call once the
// producer has finished emitting.
func (s *Sink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}
