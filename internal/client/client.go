// Package client is a typed HTTP client for the generation API together with
// a poller that waits for background jobs to finish.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrJobNotFound is returned when the API reports an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.StatusCode)
	}
	return fmt.Sprintf("api status %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Is lets errors.Is(err, ErrJobNotFound) match 404 answers.
func (e *APIError) Is(target error) bool {
	return target == ErrJobNotFound && e.StatusCode == http.StatusNotFound
}

// MusicRequest mirrors POST /v1/music/jobs. Duration is in seconds; zero lets
// the server apply its default.
type MusicRequest struct {
	Prompt   string `json:"prompt"`
	Style    string `json:"style,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Language string `json:"language,omitempty"`
	Vocal    string `json:"vocal,omitempty"`
	Title    string `json:"title,omitempty"`
}

// ImageRequest mirrors the image transform endpoints. Image is base64 or a
// data URL; ImageURL is used when Image is empty.
type ImageRequest struct {
	Image    string `json:"image,omitempty"`
	ImageURL string `json:"imageUrl,omitempty"`
	Style    string `json:"style,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
	Model    string `json:"model,omitempty"`
}

type TransformResponse struct {
	ImageURL string `json:"imageUrl"`
	Outcome  string `json:"outcome"`
	Provider string `json:"provider,omitempty"`
	Message  string `json:"message,omitempty"`
}

// StatusResponse is one job snapshot.
type StatusResponse struct {
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

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Terminal reports whether the snapshot will not change any more.
func (s *StatusResponse) Terminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}

// Client talks to one API server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type Option func(*Client)

// WithToken sends a bearer token with every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("client: invalid base url %q", baseURL)
	}
	c := &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) SubmitMusic(ctx context.Context, req MusicRequest) (string, error) {
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/music/jobs", req, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

func (c *Client) SubmitImage(ctx context.Context, req ImageRequest) (string, error) {
	var out struct {
		JobID string `json:"jobId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/images/jobs", req, &out); err != nil {
		return "", err
	}
	return out.JobID, nil
}

// Transform runs a synchronous image transform.
func (c *Client) Transform(ctx context.Context, req ImageRequest) (*TransformResponse, error) {
	var out TransformResponse
	if err := c.do(ctx, http.MethodPost, "/v1/images/transform", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, jobID string) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(jobID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Cancel(ctx context.Context, jobID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/jobs/"+url.PathEscape(jobID), nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("client: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	return nil
}
