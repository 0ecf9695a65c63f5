package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"createtree/internal/domain"
)

var timeNow = time.Now

type jobStatusResponse struct {
	JobID     string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	AudioURL  string    `json:"audioUrl,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	Duration  int       `json:"duration,omitempty"`
	Title     string    `json:"title,omitempty"`
	Provider  string    `json:"provider,omitempty"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newJobStatusResponse(job *domain.Job) jobStatusResponse {
	out := jobStatusResponse{
		JobID:     job.ID,
		Kind:      string(job.Kind),
		Status:    string(job.Status),
		Progress:  job.Progress,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.Status == domain.JobStatusFailed {
		out.Message = job.Error
	}
	if res := job.Result; res != nil {
		switch job.Kind {
		case domain.JobKindMusic:
			out.AudioURL = res.URL
			out.Duration = res.Duration
		case domain.JobKindImage:
			out.ImageURL = res.URL
		}
		out.Title = res.Title
		out.Provider = res.Provider
	}
	return out
}

// JobStatus is polled by clients; it never mutates the job.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := a.loadJobForUser(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	a.json(w, http.StatusOK, newJobStatusResponse(job))
}

// JobCancel stops a processing job. Terminal jobs answer 409.
func (a *App) JobCancel(w http.ResponseWriter, r *http.Request) {
	job, err := a.loadJobForUser(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Runner.Cancel(r.Context(), job.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{JobID: job.ID})
}

// loadJobForUser hides jobs owned by somebody else behind ErrNotFound.
func (a *App) loadJobForUser(r *http.Request) (*domain.Job, error) {
	jobID := chi.URLParam(r, "jobId")
	job, err := a.Jobs.Get(r.Context(), jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != "" && job.OwnerID != a.currentUserID(r) {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
