package apiclient

import (
	"net/url"

	"github.com/skyforge/fitsflow/pkg/jobs"
)

// StartDownloadRequest is the body of the start-download call. Either
// SourceID or ResumeJobID must be set.
type StartDownloadRequest struct {
	SourceID    string   `json:"source_id,omitempty"`
	TargetDir   string   `json:"target_dir,omitempty"`
	Filters     []string `json:"filters,omitempty"`
	ResumeJobID string   `json:"resume_job_id,omitempty"`
}

// StartDownloadResponse is the server's answer to a start or resume.
type StartDownloadResponse struct {
	JobID    string `json:"job_id"`
	IsResume bool   `json:"is_resume"`
	Status   string `json:"status"`
}

// DismissResponse reports the outcome of a dismiss call.
type DismissResponse struct {
	JobID        string `json:"job_id"`
	DeletedFiles int    `json:"deleted_files"`
}

// resumableListResponse is the wire shape of the resumable listing.
type resumableListResponse struct {
	Jobs []jobs.ResumableSummary `json:"jobs"`
}

// StartDownload starts a download job for a source, resuming a matching
// interrupted job when one exists.
func (c *Client) StartDownload(req StartDownloadRequest) (*StartDownloadResponse, error) {
	var resp StartDownloadResponse
	if err := c.post("/api/v1/downloads", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// PauseJob pauses a running download job.
func (c *Client) PauseJob(jobID string) error {
	return c.post("/api/v1/downloads/"+url.PathEscape(jobID)+"/pause", nil, nil)
}

// ResumeJob resumes a paused or journaled download job.
func (c *Client) ResumeJob(jobID string) error {
	return c.post("/api/v1/downloads/"+url.PathEscape(jobID)+"/resume", nil, nil)
}

// CancelJob cancels a download job. With deleteFiles, partial files are
// removed once the job drains.
func (c *Client) CancelJob(jobID string, deleteFiles bool) error {
	body := map[string]bool{"delete_files": deleteFiles}
	return c.post("/api/v1/downloads/"+url.PathEscape(jobID)+"/cancel", body, nil)
}

// GetJob fetches the progress snapshot for a job.
func (c *Client) GetJob(jobID string) (*jobs.Snapshot, error) {
	var snap jobs.Snapshot
	if err := c.get("/api/v1/downloads/"+url.PathEscape(jobID), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// ListResumable lists jobs that can be resumed.
func (c *Client) ListResumable() ([]jobs.ResumableSummary, error) {
	var resp resumableListResponse
	if err := c.get("/api/v1/downloads/resumable", &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// DismissJob removes a finished job's journal entry, optionally deleting
// its files.
func (c *Client) DismissJob(jobID string, deleteFiles bool) (*DismissResponse, error) {
	path := "/api/v1/downloads/" + url.PathEscape(jobID)
	if deleteFiles {
		path += "?delete_files=true"
	}
	var resp DismissResponse
	if err := c.delete(path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
