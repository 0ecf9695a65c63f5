package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"createtree/internal/domain"
	"createtree/internal/jobs"
	"createtree/internal/middleware"
	"createtree/internal/providers/image"
)

type imageRequest struct {
	Image    string `json:"image"`
	ImageURL string `json:"imageUrl"`
	Style    string `json:"style"`
	Prompt   string `json:"prompt"`
	Model    string `json:"model"`
}

type transformResponse struct {
	ImageURL string `json:"imageUrl"`
	Outcome  string `json:"outcome"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message,omitempty"`
}

type submitResponse struct {
	JobID string `json:"jobId"`
}

// ImagesTransform runs the fallback chain synchronously and always answers
// with an image URL; failures carry a placeholder and a non-success outcome.
func (a *App) ImagesTransform(w http.ResponseWriter, r *http.Request) {
	params, source, ok := a.parseImageRequest(w, r)
	if !ok {
		return
	}
	res := a.Images.Transform(r.Context(), a.transformRequest(r, params, source))
	a.json(w, http.StatusOK, transformResponse{
		ImageURL: res.URL,
		Outcome:  string(res.Outcome),
		Provider: res.Provider,
		Message:  res.Message(),
	})
}

// ImagesSubmit queues the same transform as a background job.
func (a *App) ImagesSubmit(w http.ResponseWriter, r *http.Request) {
	params, source, ok := a.parseImageRequest(w, r)
	if !ok {
		return
	}
	treq := a.transformRequest(r, params, source)
	job := domain.NewJob("", domain.JobKindImage, a.currentUserID(r), params, timeNow())
	id, err := a.Runner.Submit(r.Context(), job, func(ctx context.Context, report jobs.Reporter) (*domain.JobResult, error) {
		report(10)
		treq.RequestID = job.ID
		res := a.Images.Transform(ctx, treq)
		result := &domain.JobResult{
			URL:      res.URL,
			Provider: res.Provider,
			Metadata: map[string]string{"outcome": string(res.Outcome)},
		}
		if !res.OK() {
			return result, errors.New(res.Message())
		}
		return result, nil
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{JobID: id})
}

func (a *App) parseImageRequest(w http.ResponseWriter, r *http.Request) (domain.GenerationParams, *image.SourceImage, bool) {
	var req imageRequest
	if !a.decode(w, r, &req) {
		return domain.GenerationParams{}, nil, false
	}
	params := domain.GenerationParams{
		Style:           req.Style,
		CustomPrompt:    req.Prompt,
		ModelPreference: req.Model,
	}
	if err := params.NormalizeImage(); err != nil {
		a.fail(w, r, err)
		return params, nil, false
	}
	source, err := parseSourceImage(req.Image, req.ImageURL)
	if err != nil {
		a.fail(w, r, err)
		return params, nil, false
	}
	params.SourceImage = source.reference()
	return params, &source.SourceImage, true
}

func (a *App) transformRequest(r *http.Request, params domain.GenerationParams, source *image.SourceImage) image.TransformRequest {
	return image.TransformRequest{
		Source:          source,
		Style:           params.Style,
		Prompt:          params.CustomPrompt,
		ModelPreference: params.ModelPreference,
		RequestID:       middleware.RequestIDFromContext(r.Context()),
	}
}

type parsedSource struct {
	image.SourceImage
}

// reference is what the job record keeps: the URL, or a digest of inline bytes.
func (p parsedSource) reference() string {
	if p.URL != "" {
		return p.URL
	}
	sum := sha256.Sum256(p.Data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// parseSourceImage accepts inline base64 (optionally as a data URL) or an
// http(s) URL, which the orchestrator downloads. Inline bytes win when both
// are given.
func parseSourceImage(inline, rawURL string) (parsedSource, error) {
	inline = strings.TrimSpace(inline)
	rawURL = strings.TrimSpace(rawURL)
	switch {
	case inline != "":
		data, mime, err := decodeInlineImage(inline)
		if err != nil {
			return parsedSource{}, err
		}
		return parsedSource{image.SourceImage{Data: data, MIME: mime}}, nil
	case rawURL != "":
		u, err := url.Parse(rawURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return parsedSource{}, fmt.Errorf("%w: imageUrl must be an http(s) URL", domain.ErrInvalidParams)
		}
		return parsedSource{image.SourceImage{URL: u.String()}}, nil
	default:
		return parsedSource{}, fmt.Errorf("%w: image or imageUrl is required", domain.ErrInvalidParams)
	}
}

func decodeInlineImage(raw string) ([]byte, string, error) {
	if strings.HasPrefix(raw, "data:") {
		header, payload, ok := strings.Cut(raw, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, "", fmt.Errorf("%w: image data URL must be base64 encoded", domain.ErrInvalidParams)
		}
		raw = payload
	}
	if base64.StdEncoding.DecodedLen(len(raw)) > image.MaxSourceBytes+3 {
		return nil, "", fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalidParams, image.MaxSourceBytes)
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	}
	if err != nil || len(data) == 0 {
		return nil, "", fmt.Errorf("%w: image is not valid base64", domain.ErrInvalidParams)
	}
	mime, err := image.SniffImage(data)
	if err != nil {
		return nil, "", err
	}
	return data, mime, nil
}
