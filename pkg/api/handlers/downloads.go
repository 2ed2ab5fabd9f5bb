package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skyforge/fitsflow/pkg/download"
	"github.com/skyforge/fitsflow/pkg/jobs"
)

// DownloadService is the slice of the download service the API consumes.
type DownloadService interface {
	Start(ctx context.Context, sourceID, targetDir string, filters []string) (download.StartResult, error)
	Resume(ctx context.Context, jobID string) error
	Pause(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string, deleteParts bool) error
	Snapshot(ctx context.Context, jobID string) (jobs.Snapshot, error)
	ListResumable(ctx context.Context) ([]jobs.ResumableSummary, error)
	Dismiss(ctx context.Context, jobID string, deleteFiles bool) (int, error)
}

// DownloadsHandler handles the download job lifecycle endpoints.
type DownloadsHandler struct {
	service DownloadService
}

// NewDownloadsHandler creates a new downloads handler.
func NewDownloadsHandler(service DownloadService) *DownloadsHandler {
	return &DownloadsHandler{service: service}
}

// StartRequest is the body of POST /api/v1/downloads.
//
// Either SourceID (fresh start, with automatic resume of a matching
// interrupted job) or ResumeJobID (explicit resume of a journaled job)
// must be set.
type StartRequest struct {
	SourceID    string   `json:"source_id"`
	TargetDir   string   `json:"target_dir,omitempty"`
	Filters     []string `json:"filters,omitempty"`
	ResumeJobID string   `json:"resume_job_id,omitempty"`
}

// StartResponse is the body of a successful start or resume.
type StartResponse struct {
	JobID    string `json:"job_id"`
	IsResume bool   `json:"is_resume"`
	Status   string `json:"status"`
}

// Start handles POST /api/v1/downloads.
//
// With resume_job_id set, the journaled job is resumed in place and no
// manifest is fetched. Otherwise a job is started for source_id; if an
// interrupted job for the same source exists it is resumed instead and
// is_resume is true in the response.
func (h *DownloadsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.ResumeJobID != "" {
		if err := h.service.Resume(r.Context(), req.ResumeJobID); err != nil {
			writeJobError(w, err)
			return
		}
		WriteJSONOK(w, StartResponse{
			JobID:    req.ResumeJobID,
			IsResume: true,
			Status:   "resuming",
		})
		return
	}

	if req.SourceID == "" {
		BadRequest(w, "source_id or resume_job_id is required")
		return
	}

	result, err := h.service.Start(r.Context(), req.SourceID, req.TargetDir, req.Filters)
	if err != nil {
		writeJobError(w, err)
		return
	}

	status := "started"
	if result.IsResume {
		status = "resuming"
	}
	WriteJSONOK(w, StartResponse{
		JobID:    result.JobID,
		IsResume: result.IsResume,
		Status:   status,
	})
}

// Pause handles POST /api/v1/downloads/{id}/pause.
func (h *DownloadsHandler) Pause(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.service.Pause(r.Context(), jobID); err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSONOK(w, map[string]string{"job_id": jobID, "status": "paused"})
}

// Resume handles POST /api/v1/downloads/{id}/resume.
func (h *DownloadsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := h.service.Resume(r.Context(), jobID); err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSONOK(w, map[string]string{"job_id": jobID, "status": "resuming"})
}

// CancelRequest is the optional body of POST /api/v1/downloads/{id}/cancel.
type CancelRequest struct {
	DeleteFiles bool `json:"delete_files,omitempty"`
}

// Cancel handles POST /api/v1/downloads/{id}/cancel.
//
// Partial files are kept unless delete_files is true.
func (h *DownloadsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if !decodeJSONBody(w, r, &req) {
			return
		}
	}

	if err := h.service.Cancel(r.Context(), jobID, req.DeleteFiles); err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSONOK(w, map[string]string{"job_id": jobID, "status": "cancelled"})
}

// Get handles GET /api/v1/downloads/{id}.
//
// Live jobs return the latest engine snapshot; finished or rehydrated
// jobs return a read-only snapshot built from the journal.
func (h *DownloadsHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	snapshot, err := h.service.Snapshot(r.Context(), jobID)
	if err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSONOK(w, snapshot)
}

// ResumableResponse is the body of GET /api/v1/downloads/resumable.
type ResumableResponse struct {
	Jobs []jobs.ResumableSummary `json:"jobs"`
}

// ListResumable handles GET /api/v1/downloads/resumable.
func (h *DownloadsHandler) ListResumable(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.ListResumable(r.Context())
	if err != nil {
		writeJobError(w, err)
		return
	}
	if summaries == nil {
		summaries = []jobs.ResumableSummary{}
	}
	WriteJSONOK(w, ResumableResponse{Jobs: summaries})
}

// DismissResponse is the body of DELETE /api/v1/downloads/{id}.
type DismissResponse struct {
	JobID        string `json:"job_id"`
	DeletedFiles int    `json:"deleted_files"`
}

// Dismiss handles DELETE /api/v1/downloads/{id}.
//
// The journal entry is removed; with ?delete_files=true the job's
// completed and partial files are deleted too.
func (h *DownloadsHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	deleteFiles := r.URL.Query().Get("delete_files") == "true"

	deleted, err := h.service.Dismiss(r.Context(), jobID, deleteFiles)
	if err != nil {
		writeJobError(w, err)
		return
	}
	WriteJSONOK(w, DismissResponse{JobID: jobID, DeletedFiles: deleted})
}
