package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/jonathan/video-refinery/internal/dispatch"
)

// handleWorkerPush consumes a push-subscription delivery. 2xx acknowledges
// the message; 5xx asks the subscription to redeliver. Poison messages are
// answered 400 and left to the subscription's dead-letter policy.
func (s *Server) handleWorkerPush(w http.ResponseWriter, r *http.Request) {
	d, err := dispatch.DecodePush(r.Body, s.deps.MaxRetry)
	if err != nil {
		s.logger.Error("rejecting push delivery", slog.Any("error", err))
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	payload := d.Payload
	if !d.Counted {
		s.logger.Warn("push delivery has no deliveryAttempt, retryable failures will not fail the job; configure a dead-letter policy on the subscription",
			slog.String("job_id", payload.JobID))
	}

	err = s.deps.Worker.Handle(r.Context(), payload, d.Attempt)
	switch {
	case err == nil:
		s.jsonResponse(w, http.StatusOK, map[string]any{"jobId": payload.JobID, "status": "processed"})
	case errors.Is(err, dispatch.ErrPoison):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dispatch.ErrLeaseHeld):
		// Another worker owns the job; a later redelivery will find it done.
		s.errorResponse(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.errorResponse(w, http.StatusInternalServerError, "processing failed, retry requested")
	}
}
