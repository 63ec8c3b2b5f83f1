package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// maxSubmitBody bounds POST /jobs bodies.
const maxSubmitBody = 64 << 10

// SubmitJobResponse is returned by POST /jobs.
type SubmitJobResponse struct {
	JobID  string       `json:"jobId"`
	Status types.Status `json:"status"`
	Job    *types.Job   `json:"job"`
}

// ListJobsResponse is returned by GET /jobs.
type ListJobsResponse struct {
	Jobs   []*types.Job `json:"jobs"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// EventsResponse is returned by GET /jobs/{id}/events.
type EventsResponse struct {
	JobID  string        `json:"jobId"`
	Events []types.Event `json:"events"`
}

// handleSubmitJob validates and enqueues a job.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitJobRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxSubmitBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	job, err := s.deps.Service.Submit(r.Context(), req)
	if err != nil {
		s.errorFrom(w, err)
		return
	}

	w.Header().Set("Location", "/jobs/"+job.ID)
	s.jsonResponse(w, http.StatusAccepted, SubmitJobResponse{JobID: job.ID, Status: job.Status, Job: job})
}

// handleListJobs lists jobs newest first.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{Status: types.Status(q.Get("status"))}
	if filter.Status != "" && !filter.Status.IsValid() {
		s.errorResponse(w, http.StatusBadRequest, "unknown status: "+string(filter.Status))
		return
	}
	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid offset")
		return
	}
	filter = filter.Normalize()

	jobs, err := s.deps.Jobs.List(r.Context(), filter)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if jobs == nil {
		jobs = []*types.Job{}
	}
	s.jsonResponse(w, http.StatusOK, ListJobsResponse{Jobs: jobs, Limit: filter.Limit, Offset: filter.Offset})
}

// handleGetJob returns one job.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Jobs.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleCancelJob forces a running job to FAILED.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Service.Cancel(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrTerminal) && job != nil {
		s.jsonResponse(w, http.StatusConflict, map[string]any{
			"error": "job already finished",
			"job":   job,
		})
		return
	}
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleListEvents returns the job's audit trail in append order.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.deps.Jobs.Get(r.Context(), id); err != nil {
		s.errorFrom(w, err)
		return
	}
	events, err := s.deps.Events.Events(r.Context(), id)
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	if events == nil {
		events = []types.Event{}
	}
	s.jsonResponse(w, http.StatusOK, EventsResponse{JobID: id, Events: events})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
