package domain

import "time"

// JobKind enumerates supported generation job categories.
type JobKind string

const (
	JobKindMusic JobKind = "music"
	JobKindImage JobKind = "image"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s accepts no further mutation.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobResult is the output reference of a finished generation.
type JobResult struct {
	URL      string            `json:"url"`
	Duration int               `json:"duration,omitempty"`
	Title    string            `json:"title,omitempty"`
	Provider string            `json:"provider,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func (r *JobResult) clone() *JobResult {
	if r == nil {
		return nil
	}
	out := *r
	if r.Metadata != nil {
		out.Metadata = make(map[string]string, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// Job encapsulates the lifecycle of one asynchronous music or image generation.
// Only the background task that created it mutates a job; readers receive copies.
type Job struct {
	ID        string           `json:"id"`
	Kind      JobKind          `json:"kind"`
	OwnerID   string           `json:"owner_id,omitempty"`
	Params    GenerationParams `json:"params"`
	Status    JobStatus        `json:"status"`
	Progress  int              `json:"progress"`
	Result    *JobResult       `json:"result,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// NewJob returns a job in the processing state with zero progress.
func NewJob(id string, kind JobKind, ownerID string, params GenerationParams, now time.Time) *Job {
	now = now.UTC()
	return &Job{
		ID:        id,
		Kind:      kind,
		OwnerID:   ownerID,
		Params:    params.Clone(),
		Status:    JobStatusProcessing,
		Progress:  0,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy of the job.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.Params = j.Params.Clone()
	out.Result = j.Result.clone()
	return &out
}

// JobPatch carries the fields a background task may overwrite.
type JobPatch struct {
	Status   *JobStatus
	Progress *int
	Result   *JobResult
	Error    *string
}

// ProgressPatch reports best-effort progress.
func ProgressPatch(progress int) JobPatch {
	return JobPatch{Progress: &progress}
}

// CompletedPatch moves a job to completed with its result.
func CompletedPatch(result JobResult) JobPatch {
	status := JobStatusCompleted
	progress := 100
	return JobPatch{Status: &status, Progress: &progress, Result: &result}
}

// FailedPatch moves a job to failed with a user-facing message. A result may
// still be attached, e.g. a placeholder image URL.
func FailedPatch(message string, result *JobResult) JobPatch {
	status := JobStatusFailed
	return JobPatch{Status: &status, Error: &message, Result: result}
}

// Apply mutates the job according to the patch. Terminal jobs reject every
// patch with ErrJobTerminal; progress is clamped to 0..100 and never lowered.
func (j *Job) Apply(p JobPatch, now time.Time) error {
	if j.Status.Terminal() {
		return ErrJobTerminal
	}
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.Progress != nil {
		progress := clampProgress(*p.Progress)
		if progress > j.Progress {
			j.Progress = progress
		}
	}
	if p.Result != nil {
		j.Result = p.Result.clone()
	}
	if p.Error != nil {
		j.Error = *p.Error
	}
	if p.Status != nil {
		j.Status = *p.Status
		if j.Status == JobStatusCompleted {
			j.Progress = 100
		}
	}
	j.UpdatedAt = now.UTC()
	return nil
}

func clampProgress(v int) int {
	switch {
	case v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
