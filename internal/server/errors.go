package server

import (
	"errors"
	"net/http"

	"github.com/jonathan/video-refinery/internal/dispatch"
	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		validationErr *types.ValidationError
		storageErr    *types.StorageError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &validationErr), errors.Is(err, dispatch.ErrPoison):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrTerminal), errors.Is(err, store.ErrInvalidTransition), errors.Is(err, dispatch.ErrLeaseHeld):
		return http.StatusConflict
	case errors.As(err, &storageErr), errors.Is(err, pipeline.ErrEnqueue):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
