package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonathan/video-refinery/internal/types"
)

// SSEWriter helps write Server-Sent Events
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter creates a new SSE writer
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteEvent sends an SSE event
func (s *SSEWriter) WriteEvent(event, id string, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		if _, err := fmt.Fprintf(s.w, "id: %s\n", id); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, jsonData); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// WriteError sends an error event
func (s *SSEWriter) WriteError(message string) {
	s.WriteEvent("error", "", map[string]string{"error": message}) //nolint:errcheck
}

// WriteComplete sends the closing event carrying the terminal job.
func (s *SSEWriter) WriteComplete(job *types.Job) {
	s.WriteEvent("complete", "", map[string]any{ //nolint:errcheck
		"jobId":  job.ID,
		"status": job.Status,
		"error":  job.Error,
	})
}

// handleStreamEvents replays the job's event log, then follows new events
// until the job is terminal or the client goes away. Live events come from
// the bus when one is configured and from polling the log otherwise; both
// are deduplicated by event id.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	job, err := s.deps.Jobs.Get(ctx, id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	// Subscribe before replaying so nothing falls between the two.
	var live <-chan types.Event
	if s.deps.Follower != nil && !job.Status.IsTerminal() {
		followCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if live, err = s.deps.Follower.Follow(followCtx, id); err != nil {
			s.logger.Warn("event bus unavailable, polling instead", slog.String("job_id", id), slog.Any("error", err))
			live = nil
		}
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	seen := make(map[string]bool)
	replay := func() bool {
		events, err := s.deps.Events.Events(ctx, id)
		if err != nil {
			sse.WriteError(types.Humanize(err))
			return false
		}
		for _, e := range events {
			if seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			if err := sse.WriteEvent(string(e.Type), e.ID, e); err != nil {
				return false
			}
		}
		return true
	}
	finished := func() bool {
		current, err := s.deps.Jobs.Get(ctx, id)
		if err != nil {
			sse.WriteError(types.Humanize(err))
			return true
		}
		if current.Status.IsTerminal() {
			replay()
			sse.WriteComplete(current)
			return true
		}
		return false
	}

	if !replay() || finished() {
		return
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			if !seen[e.ID] {
				seen[e.ID] = true
				if err := sse.WriteEvent(string(e.Type), e.ID, e); err != nil {
					return
				}
			}
			if e.Type == types.EventJobCompleted || e.Type == types.EventJobFailed {
				if finished() {
					return
				}
			}
		case <-ticker.C:
			if live == nil && !replay() {
				return
			}
			if finished() {
				return
			}
		}
	}
}
