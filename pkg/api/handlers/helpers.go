package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/skyforge/fitsflow/pkg/download"
	"github.com/skyforge/fitsflow/pkg/jobs"
	"github.com/skyforge/fitsflow/pkg/storage"
)

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns true if successful, false if decoding fails (error response is
// written automatically).
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		BadRequest(w, "Invalid request body")
		return false
	}
	return true
}

// writeJobError maps the job-lifecycle sentinel errors onto problem
// responses. Anything unrecognized becomes a 500.
func writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		NotFound(w, err.Error())
	case errors.Is(err, jobs.ErrResumeConflict):
		Conflict(w, err.Error())
	case errors.Is(err, jobs.ErrIllegalTransition):
		Conflict(w, err.Error())
	case errors.Is(err, download.ErrNotResumable):
		BadRequest(w, err.Error())
	case errors.Is(err, jobs.ErrInvalidSourceID):
		BadRequest(w, err.Error())
	case errors.Is(err, storage.ErrInvalidKey):
		BadRequest(w, err.Error())
	default:
		InternalServerError(w, err.Error())
	}
}
