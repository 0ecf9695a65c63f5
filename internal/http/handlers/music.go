package handlers

import (
	"context"
	"errors"
	"net/http"

	"createtree/internal/domain"
	"createtree/internal/jobs"
	"createtree/internal/middleware"
	"createtree/internal/providers/music"
)

type musicRequest struct {
	Prompt   string         `json:"prompt"`
	Style    string         `json:"style"`
	Duration domain.Seconds `json:"duration"`
	Language string         `json:"language"`
	Vocal    string         `json:"vocal"`
	Title    string         `json:"title"`
}

// MusicSubmit validates the request, records a processing job and starts the
// generation in the background.
func (a *App) MusicSubmit(w http.ResponseWriter, r *http.Request) {
	var req musicRequest
	if !a.decode(w, r, &req) {
		return
	}
	params := domain.GenerationParams{
		Prompt:          req.Prompt,
		Style:           req.Style,
		DurationSeconds: int(req.Duration),
		Language:        req.Language,
		Vocal:           req.Vocal,
		Title:           req.Title,
	}
	if err := params.NormalizeMusic(middleware.LocaleFromContext(r.Context())); err != nil {
		a.fail(w, r, err)
		return
	}

	job := domain.NewJob("", domain.JobKindMusic, a.currentUserID(r), params, timeNow())
	id, err := a.Runner.Submit(r.Context(), job, a.musicTask(job, params))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{JobID: id})
}

func (a *App) musicTask(job *domain.Job, params domain.GenerationParams) jobs.Task {
	gen := a.Music
	return func(ctx context.Context, report jobs.Reporter) (*domain.JobResult, error) {
		track, err := gen.Generate(ctx, music.Request{
			Prompt:          params.Prompt,
			Style:           params.Style,
			DurationSeconds: params.DurationSeconds,
			Language:        params.Language,
			Instrumental:    params.Instrumental(),
			Vocal:           params.Vocal,
			Title:           params.Title,
			RequestID:       job.ID,
		}, music.ProgressFunc(report))
		if err != nil {
			if errors.Is(err, music.ErrGenerationTimeout) {
				return nil, music.ErrGenerationTimeout
			}
			a.Logger.Warn().Err(err).Str("job_id", job.ID).Str("provider", gen.Name()).Msg("music: generation failed")
			return nil, err
		}
		duration := track.DurationSeconds
		if duration <= 0 {
			duration = params.DurationSeconds
		}
		title := track.Title
		if title == "" {
			title = params.Title
		}
		result := &domain.JobResult{
			URL:      track.URL,
			Duration: duration,
			Title:    title,
			Provider: track.Provider,
		}
		if track.ClipID != "" {
			result.Metadata = map[string]string{"clip_id": track.ClipID}
		}
		return result, nil
	}
}
