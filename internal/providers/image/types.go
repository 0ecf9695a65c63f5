package image

import (
	"context"
	"strings"
)

// SourceImage is the photo a transform starts from.
type SourceImage struct {
	Data []byte
	MIME string
	URL  string
}

// HasData reports whether the image bytes were supplied inline.
func (s *SourceImage) HasData() bool {
	return s != nil && len(s.Data) > 0
}

// GenerateRequest is the normalized input passed to one image provider.
type GenerateRequest struct {
	Prompt      string
	Source      *SourceImage
	RequestID   string
	Size        string
	Quality     string
	StyleKey    string
	Description string
}

// Asset is a generated image, either hosted by the provider (URL) or returned
// inline (Data, already base64-decoded).
type Asset struct {
	URL    string
	Data   []byte
	Format string
}

// Empty reports whether the provider returned neither a URL nor bytes.
func (a *Asset) Empty() bool {
	return a == nil || (strings.TrimSpace(a.URL) == "" && len(a.Data) == 0)
}

// Generator is the contract implemented by the primary and secondary providers.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*Asset, error)
}

// Outcome classifies the result of a transform.
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePolicyRejected Outcome = "policy_rejected"
	OutcomeUnavailable    Outcome = "unavailable"
	OutcomeInvalidInput   Outcome = "invalid_input"
)

// TransformRequest is the input of Orchestrator.Transform.
type TransformRequest struct {
	Source          *SourceImage
	Style           string
	Prompt          string
	ModelPreference string
	RequestID       string
}

// Result is the tagged outcome of a transform. URL is always a usable image
// URL: the generated one on success, a placeholder otherwise.
type Result struct {
	Outcome  Outcome
	URL      string
	Provider string
	Err      error
}

// OK reports whether a provider produced the image.
func (r Result) OK() bool {
	return r.Outcome == OutcomeSuccess
}

// Message returns the user-facing failure text for non-success outcomes.
func (r Result) Message() string {
	switch r.Outcome {
	case OutcomeSuccess:
		return ""
	case OutcomePolicyRejected:
		return "the request was blocked by the content safety filter"
	case OutcomeInvalidInput:
		if r.Err != nil {
			return "invalid transform request: " + r.Err.Error()
		}
		return "invalid transform request"
	default:
		return "image service unavailable"
	}
}
