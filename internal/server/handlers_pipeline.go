package server

import (
	"net/http"

	"github.com/jonathan/video-refinery/internal/pipeline/steps"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// PipelineResponse is returned by GET /pipeline.
type PipelineResponse struct {
	Health       string                      `json:"health"`
	Stats        map[types.Status]int        `json:"stats"`
	Total        int                         `json:"total"`
	FailureRatio float64                     `json:"failureRatio"`
	Routes       map[types.TaskType][]string `json:"routes"`
	Stages       []steps.StageDefinition     `json:"stages"`
}

// handlePipeline reports job counts per status and derived health.
func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	counts, err := s.deps.Jobs.Stats(r.Context())
	if err != nil {
		s.errorFrom(w, err)
		return
	}
	stats := store.Summarize(counts)
	s.jsonResponse(w, http.StatusOK, PipelineResponse{
		Health:       stats.Health,
		Stats:        stats.Counts,
		Total:        stats.Total,
		FailureRatio: stats.FailureRatio,
		Routes:       steps.Routes(),
		Stages:       steps.Stages(),
	})
}

// handleAgents lists the ENHANCE agent catalog.
func (s *Server) handleAgents(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]any{"agents": steps.Agents()})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}
