package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"createtree/internal/domain"
	"createtree/internal/infra"
	"createtree/internal/jobs"
	"createtree/internal/middleware"
	"createtree/internal/providers/image"
	"createtree/internal/providers/music"
	"createtree/internal/storage"
)

const maxRequestBody = 16 << 20

// App carries the dependencies shared by every handler.
type App struct {
	Config *infra.Config
	Logger infra.Logger
	Jobs   domain.JobRepository
	Runner *jobs.Runner
	Images *image.Orchestrator
	Music  music.Generator
	Assets *storage.FileStore
	// CountryLookup feeds the locale middleware; nil disables IP lookups.
	CountryLookup middleware.CountryLookup
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// fail maps domain errors onto HTTP responses.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidParams):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
	case errors.Is(err, domain.ErrJobTerminal):
		a.error(w, http.StatusConflict, "conflict", "job already finished")
	case errors.Is(err, domain.ErrJobExists):
		a.error(w, http.StatusConflict, "conflict", "job already exists")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
	case errors.Is(err, jobs.ErrRunnerClosed):
		a.error(w, http.StatusServiceUnavailable, "internal", "server is shutting down")
	case errors.Is(err, context.Canceled):
		// client went away; nothing useful to write
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			a.error(w, http.StatusRequestEntityTooLarge, "bad_request", "request body too large")
		case errors.Is(err, domain.ErrInvalidParams):
			a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		}
		return false
	}
	return true
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
