package music

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"createtree/internal/infra"
)

const (
	defaultSunoBaseURL  = "http://localhost:3000"
	defaultPollInterval = 5 * time.Second
	defaultMaxWait      = 5 * time.Minute
	sunoProviderName    = "suno"
	sunoStatusComplete  = "complete"
	sunoStatusError     = "error"
	submitProgress      = 10
	maxPollingProgress  = 90
)

// SunoOptions configures the Suno-compatible client.
type SunoOptions struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	MaxWait      time.Duration
	HTTPClient   *http.Client
	Logger       *infra.Logger
}

// SunoClient submits tracks to a Suno-compatible HTTP API and polls the clip
// feed until the clip finishes, fails or the maximum wait elapses.
type SunoClient struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	maxWait      time.Duration
	httpClient   *http.Client
	logger       infra.Logger
}

type sunoGenerateRequest struct {
	Prompt           string `json:"prompt"`
	Tags             string `json:"tags,omitempty"`
	Title            string `json:"title,omitempty"`
	MakeInstrumental bool   `json:"make_instrumental"`
	WaitAudio        bool   `json:"wait_audio"`
}

type sunoClip struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Status       string  `json:"status"`
	AudioURL     string  `json:"audio_url"`
	Duration     float64 `json:"duration"`
	ErrorMessage string  `json:"error_message"`
}

type sunoErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Detail  string `json:"detail"`
}

func NewSunoClient(opts SunoOptions) *SunoClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultSunoBaseURL
	}
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxWait := opts.MaxWait
	if maxWait <= 0 || maxWait > defaultMaxWait {
		maxWait = defaultMaxWait
	}
	logger := *infra.NopLogger()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &SunoClient{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		pollInterval: interval,
		maxWait:      maxWait,
		httpClient:   client,
		logger:       logger,
	}
}

func (c *SunoClient) Name() string { return sunoProviderName }

// Generate submits the track and waits for the first clip to complete.
func (c *SunoClient) Generate(ctx context.Context, req Request, progress ProgressFunc) (*Track, error) {
	if c.apiKey == "" {
		return nil, errors.New("suno: api key is not configured")
	}
	ctx, cancel := context.WithTimeoutCause(ctx, c.maxWait, ErrGenerationTimeout)
	defer cancel()

	payload := sunoGenerateRequest{
		Prompt:           buildSunoPrompt(req),
		Tags:             buildSunoTags(req),
		Title:            strings.TrimSpace(req.Title),
		MakeInstrumental: req.Instrumental,
	}
	var clips []sunoClip
	if err := c.invoke(ctx, http.MethodPost, "/api/custom_generate", payload, &clips); err != nil {
		return nil, c.wrap(ctx, err)
	}
	if len(clips) == 0 || clips[0].ID == "" {
		return nil, errors.New("suno: generate response contained no clip")
	}
	clipID := clips[0].ID
	report(progress, submitProgress)
	c.logger.Debug().Str("request_id", req.RequestID).Str("clip_id", clipID).Msg("suno: clip submitted")

	started := time.Now()
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, c.wrap(ctx, ctx.Err())
		case <-ticker.C:
		}

		clip, err := c.fetchClip(ctx, clipID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, c.wrap(ctx, err)
			}
			c.logger.Warn().Err(err).Str("clip_id", clipID).Msg("suno: poll failed")
			continue
		}
		switch strings.ToLower(clip.Status) {
		case sunoStatusComplete:
			if strings.TrimSpace(clip.AudioURL) == "" {
				return nil, errors.New("suno: completed clip has no audio url")
			}
			duration := int(math.Round(clip.Duration))
			if duration <= 0 {
				duration = req.DurationSeconds
			}
			title := strings.TrimSpace(clip.Title)
			if title == "" {
				title = req.Title
			}
			return &Track{URL: clip.AudioURL, DurationSeconds: duration, Title: title, Provider: sunoProviderName, ClipID: clip.ID}, nil
		case sunoStatusError:
			msg := strings.TrimSpace(clip.ErrorMessage)
			if msg == "" {
				msg = "clip failed"
			}
			return nil, fmt.Errorf("suno: %s", msg)
		default:
			report(progress, pollingProgress(time.Since(started), c.maxWait))
		}
	}
}

func (c *SunoClient) fetchClip(ctx context.Context, clipID string) (*sunoClip, error) {
	var clips []sunoClip
	if err := c.invoke(ctx, http.MethodGet, "/api/get?ids="+url.QueryEscape(clipID), nil, &clips); err != nil {
		return nil, err
	}
	for i := range clips {
		if clips[i].ID == clipID {
			return &clips[i], nil
		}
	}
	return nil, fmt.Errorf("suno: clip %s missing from feed", clipID)
}

func (c *SunoClient) invoke(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("invoke suno: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var apiErr sunoErrorResponse
		if json.Unmarshal(data, &apiErr) == nil {
			for _, msg := range []string{apiErr.Error, apiErr.Message, apiErr.Detail} {
				if strings.TrimSpace(msg) != "" {
					return fmt.Errorf("suno status %d: %s", resp.StatusCode, msg)
				}
			}
		}
		if len(data) > 0 {
			return fmt.Errorf("suno status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("suno status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode suno response: %w", err)
	}
	return nil
}

// wrap maps a deadline hit by the maximum wait onto ErrGenerationTimeout.
func (c *SunoClient) wrap(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrGenerationTimeout) {
		return fmt.Errorf("suno: %w after %s", ErrGenerationTimeout, c.maxWait)
	}
	if strings.HasPrefix(err.Error(), "suno") {
		return err
	}
	return fmt.Errorf("suno: %w", err)
}

func pollingProgress(elapsed, maxWait time.Duration) int {
	if maxWait <= 0 {
		return submitProgress
	}
	span := maxPollingProgress - submitProgress
	p := submitProgress + int(float64(span)*float64(elapsed)/float64(maxWait))
	if p > maxPollingProgress {
		p = maxPollingProgress
	}
	return p
}

func buildSunoPrompt(req Request) string {
	prompt := strings.TrimSpace(req.Prompt)
	if req.Instrumental {
		return prompt
	}
	if lang := strings.TrimSpace(req.Language); lang != "" && lang != "en" {
		return fmt.Sprintf("%s\n[lyrics language: %s]", prompt, lang)
	}
	return prompt
}

func buildSunoTags(req Request) string {
	var tags []string
	if style := strings.TrimSpace(req.Style); style != "" {
		tags = append(tags, style)
	}
	switch req.Vocal {
	case "female":
		tags = append(tags, "female vocals")
	case "male":
		tags = append(tags, "male vocals")
	}
	if req.DurationSeconds > 0 {
		tags = append(tags, fmt.Sprintf("%d seconds", req.DurationSeconds))
	}
	return strings.Join(tags, ", ")
}

var _ Generator = (*SunoClient)(nil)
