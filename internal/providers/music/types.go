package music

import (
	"context"
	"errors"
	"strings"

	"createtree/internal/infra"
)

// ErrGenerationTimeout is returned when the provider does not finish a track
// within the maximum wait.
var ErrGenerationTimeout = errors.New("music generation timed out")

// Request is the normalized input for one track.
type Request struct {
	Prompt          string
	Style           string
	DurationSeconds int
	Language        string
	Instrumental    bool
	Vocal           string
	Title           string
	RequestID       string
}

// Track is a finished generation.
type Track struct {
	URL             string
	DurationSeconds int
	Title           string
	Provider        string
	ClipID          string
}

// ProgressFunc receives best-effort progress in percent.
type ProgressFunc func(progress int)

// Generator produces one track per request.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request, progress ProgressFunc) (*Track, error)
}

// AssetStore persists rendered audio and maps keys to public URLs.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

func report(progress ProgressFunc, v int) {
	if progress != nil {
		progress(v)
	}
}

// NewGenerator picks the configured provider. Suno without a key falls back
// to the synthetic generator so the music flow keeps working locally.
func NewGenerator(cfg infra.MusicConfig, assets AssetStore, logger *infra.Logger) Generator {
	if cfg.Provider == infra.MusicProviderSuno && strings.TrimSpace(cfg.SunoAPIKey) != "" {
		return NewSunoClient(SunoOptions{
			APIKey:       cfg.SunoAPIKey,
			BaseURL:      cfg.SunoBaseURL,
			PollInterval: cfg.PollInterval,
			MaxWait:      cfg.MaxWait,
			Logger:       logger,
		})
	}
	if cfg.Provider == infra.MusicProviderSuno && logger != nil {
		logger.Warn().Msg("music: SUNO_API_KEY missing, using synthetic generator")
	}
	return NewSyntheticGenerator(assets, logger)
}
