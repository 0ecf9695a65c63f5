package image

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"createtree/internal/domain"
	"createtree/internal/infra"
)

const (
	credentialPrefix    = "sk-"
	minCredentialLength = 20
)

var (
	// ErrCredentialUnavailable marks a missing or malformed provider key.
	ErrCredentialUnavailable = errors.New("image provider credential missing or malformed")
	errNoProvider            = errors.New("no image provider configured")
)

// AssetStore persists inline image payloads and maps them to public URLs.
type AssetStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
	URL(key string) string
}

// OrchestratorOptions wires the orchestrator. Credential is the provider key
// the generators were built with; it is checked before any network call,
// including the download of a source photo given by URL.
type OrchestratorOptions struct {
	Credential string
	Primary    Generator
	Secondary  Generator
	Styles     *Catalog
	Assets     AssetStore
	Fetcher    SourceFetcher
	Logger     *infra.Logger
}

// Orchestrator turns a photo and a style into one image URL, trying the
// primary model, then the secondary, then a placeholder. It never returns an
// error; the outcome is carried by Result.
type Orchestrator struct {
	credential string
	primary    Generator
	secondary  Generator
	styles     *Catalog
	assets     AssetStore
	fetcher    SourceFetcher
	logger     infra.Logger
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	o := &Orchestrator{
		credential: opts.Credential,
		primary:    opts.Primary,
		secondary:  opts.Secondary,
		styles:     opts.Styles,
		assets:     opts.Assets,
		fetcher:    opts.Fetcher,
		logger:     *infra.NopLogger(),
	}
	if opts.Logger != nil {
		o.logger = *opts.Logger
	}
	if o.styles == nil {
		o.styles = NewCatalog(nil)
	}
	if o.fetcher == nil {
		o.fetcher = NewHTTPSourceFetcher(0, false)
	}
	return o
}

// NewOpenAIOrchestrator builds the gpt-image / dall-e chain from configuration.
func NewOpenAIOrchestrator(cfg *infra.Config, styles *Catalog, assets AssetStore, logger *infra.Logger) *Orchestrator {
	primary := NewOpenAIGenerator(OpenAIOptions{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.PrimaryModel,
		Timeout: cfg.OpenAI.Timeout,
	})
	secondary := NewOpenAIGenerator(OpenAIOptions{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.OpenAI.SecondaryModel,
		Timeout: cfg.OpenAI.Timeout,
	})
	return NewOrchestrator(OrchestratorOptions{
		Credential: cfg.OpenAI.APIKey,
		Primary:    primary,
		Secondary:  secondary,
		Styles:     styles,
		Assets:     assets,
		Logger:     logger,
	})
}

// Styles exposes the catalog used for resolution.
func (o *Orchestrator) Styles() *Catalog { return o.styles }

// Available reports whether the configured credential is well formed.
func (o *Orchestrator) Available() bool {
	return ValidCredential(o.credential)
}

// ValidCredential reports whether key looks like a usable OpenAI key.
func ValidCredential(key string) bool {
	if len(key) < minCredentialLength || !strings.HasPrefix(key, credentialPrefix) {
		return false
	}
	return strings.IndexFunc(key, unicode.IsSpace) < 0
}

// Transform runs the fallback chain. Each step is attempted at most once.
func (o *Orchestrator) Transform(ctx context.Context, req TransformRequest) (res Result) {
	log := o.logger.With().Str("request_id", req.RequestID).Str("style", req.Style).Logger()
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Msg("image: transform panicked")
			res = fail(OutcomeUnavailable, "", fmt.Errorf("transform panicked: %v", rec))
		}
	}()

	if !o.Available() {
		log.Warn().Msg("image: credential unavailable, returning placeholder")
		return fail(OutcomeUnavailable, "", ErrCredentialUnavailable)
	}

	pref, err := domain.NormalizeModelPreference(req.ModelPreference)
	if err != nil {
		return fail(OutcomeInvalidInput, "", err)
	}
	if strings.TrimSpace(req.Style) == "" && strings.TrimSpace(req.Prompt) == "" {
		return fail(OutcomeInvalidInput, "", fmt.Errorf("%w: style or prompt is required", domain.ErrInvalidParams))
	}

	source, err := o.resolveSource(ctx, req.Source)
	if err != nil {
		if ctx.Err() != nil {
			return fail(OutcomeUnavailable, "", err)
		}
		log.Warn().Err(err).Msg("image: source photo could not be loaded")
		return fail(OutcomeInvalidInput, "", err)
	}

	style, known := o.styles.Resolve(req.Style)
	if !known {
		log.Debug().Str("description", style.Description).Msg("image: unknown style key, using raw description")
	}

	if pref != domain.ModelDallE && o.primary != nil {
		preq := GenerateRequest{
			Prompt:      PrimaryPrompt(style, req.Prompt, source.HasData()),
			Source:      source,
			RequestID:   req.RequestID,
			StyleKey:    style.Key,
			Description: style.Description,
		}
		out, err := o.attempt(ctx, o.primary, preq)
		if err == nil {
			return out
		}
		if isSafetyError(err) {
			log.Warn().Err(err).Str("provider", o.primary.Name()).Msg("image: primary rejected by safety filter")
			return fail(OutcomePolicyRejected, o.primary.Name(), err)
		}
		log.Warn().Err(err).Str("provider", o.primary.Name()).Msg("image: primary failed, falling back")
	}

	if err := ctx.Err(); err != nil {
		return fail(OutcomeUnavailable, "", err)
	}
	if o.secondary == nil {
		return fail(OutcomeUnavailable, "", errNoProvider)
	}

	sreq := GenerateRequest{
		Prompt:      SecondaryPrompt(style, req.Prompt),
		RequestID:   req.RequestID,
		StyleKey:    style.Key,
		Description: style.Description,
	}
	res, err = o.attempt(ctx, o.secondary, sreq)
	if err == nil {
		return res
	}
	if isSafetyError(err) {
		log.Warn().Err(err).Str("provider", o.secondary.Name()).Msg("image: secondary rejected by safety filter")
		return fail(OutcomePolicyRejected, o.secondary.Name(), err)
	}
	log.Error().Err(err).Str("provider", o.secondary.Name()).Msg("image: secondary failed")
	return fail(OutcomeUnavailable, o.secondary.Name(), err)
}

// resolveSource downloads a URL-only source so the primary can edit the
// actual photo. The caller's SourceImage is never modified.
func (o *Orchestrator) resolveSource(ctx context.Context, src *SourceImage) (*SourceImage, error) {
	if src == nil || src.HasData() || strings.TrimSpace(src.URL) == "" {
		return src, nil
	}
	return o.fetcher.Fetch(ctx, src.URL)
}

func (o *Orchestrator) attempt(ctx context.Context, gen Generator, req GenerateRequest) (Result, error) {
	asset, err := gen.Generate(ctx, req)
	if err != nil {
		return Result{}, err
	}
	if asset.Empty() {
		return Result{}, fmt.Errorf("%s: %w", gen.Name(), errEmptyImageResponse)
	}
	if u := strings.TrimSpace(asset.URL); u != "" {
		return Result{Outcome: OutcomeSuccess, URL: u, Provider: gen.Name()}, nil
	}
	u, err := o.persist(ctx, asset)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", gen.Name(), err)
	}
	return Result{Outcome: OutcomeSuccess, URL: u, Provider: gen.Name()}, nil
}

func (o *Orchestrator) persist(ctx context.Context, asset *Asset) (string, error) {
	if o.assets == nil {
		return "", errors.New("no asset store for inline image payload")
	}
	key := path.Join("images", uuid.NewString()+formatExtension(asset.Format))
	stored, err := o.assets.Write(ctx, key, asset.Data)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return o.assets.URL(stored), nil
}

func fail(outcome Outcome, provider string, err error) Result {
	return Result{Outcome: outcome, URL: PlaceholderFor(outcome), Provider: provider, Err: err}
}

func formatExtension(format string) string {
	switch format {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
