package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gemscout/scrape"
)

// handleScrapeProgress streams a crawl job's events as server-sent events.
// The stream ends when the crawl finishes or the client disconnects.
func (s *Server) handleScrapeProgress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	events, ok := s.engine.CrawlEvents(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "no event stream for this job")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-events:
			if !open {
				fmt.Fprintf(w, "event: done\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventName(e), data)
			flusher.Flush()
		}
	}
}

// eventName maps event variants to SSE event types.
func eventName(e scrape.Event) string {
	switch e.(type) {
	case scrape.Started:
		return "started"
	case scrape.Discovery:
		return "discovery"
	case scrape.CountryStart:
		return "country_start"
	case scrape.UniversityStart:
		return "university_start"
	case scrape.UniversityComplete:
		return "university_complete"
	case scrape.UniversityError:
		return "university_error"
	case scrape.CountryComplete:
		return "country_complete"
	case scrape.Completed:
		return "completed"
	case scrape.ErrorEvent:
		return "error"
	default:
		return "event"
	}
}
