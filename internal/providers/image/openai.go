package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIOptions configures one OpenAI image model.
type OpenAIOptions struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIGenerator calls the OpenAI Images API for a single model. The SDK is
// configured with zero retries so each orchestrator step hits the API once.
type OpenAIGenerator struct {
	client openai.Client
	model  string
}

func NewOpenAIGenerator(opts OpenAIOptions) *OpenAIGenerator {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(opts.APIKey)),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(base))
	}
	if opts.HTTPClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, option.WithRequestTimeout(opts.Timeout))
	}
	return &OpenAIGenerator{
		client: openai.NewClient(reqOpts...),
		model:  strings.TrimSpace(opts.Model),
	}
}

func (g *OpenAIGenerator) Name() string { return g.model }

// Generate edits the source photo when the model accepts image input and
// bytes were supplied; otherwise it generates from the prompt alone.
func (g *OpenAIGenerator) Generate(ctx context.Context, req GenerateRequest) (*Asset, error) {
	var (
		resp *openai.ImagesResponse
		err  error
	)
	if req.Source.HasData() && g.supportsEdit() {
		resp, err = g.client.Images.Edit(ctx, openai.ImageEditParams{
			Image: openai.ImageEditParamsImageUnion{
				OfFile: openai.File(bytes.NewReader(req.Source.Data), "source"+extensionFor(req.Source.MIME), req.Source.MIME),
			},
			Prompt: req.Prompt,
			Model:  openai.ImageModel(g.model),
			N:      openai.Int(1),
			Size:   openai.ImageEditParamsSize1024x1024,
		})
	} else {
		params := openai.ImageGenerateParams{
			Prompt: req.Prompt,
			Model:  openai.ImageModel(g.model),
			N:      openai.Int(1),
			Size:   openai.ImageGenerateParamsSize1024x1024,
		}
		if g.isDallE() {
			params.ResponseFormat = openai.ImageGenerateParamsResponseFormatURL
			params.Quality = openai.ImageGenerateParamsQualityStandard
		}
		resp, err = g.client.Images.Generate(ctx, params)
	}
	if err != nil {
		return nil, fmt.Errorf("openai %s: %w", g.model, describeAPIError(err))
	}
	return assetFromResponse(resp)
}

func (g *OpenAIGenerator) isDallE() bool {
	return strings.HasPrefix(strings.ToLower(g.model), "dall-e")
}

func (g *OpenAIGenerator) supportsEdit() bool {
	return strings.HasPrefix(strings.ToLower(g.model), "gpt-image")
}

var errEmptyImageResponse = errors.New("response contained no image")

func assetFromResponse(resp *openai.ImagesResponse) (*Asset, error) {
	if resp == nil || len(resp.Data) == 0 {
		return nil, errEmptyImageResponse
	}
	first := resp.Data[0]
	if u := strings.TrimSpace(first.URL); u != "" {
		return &Asset{URL: u}, nil
	}
	if b64 := strings.TrimSpace(first.B64JSON); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode image payload: %w", err)
		}
		return &Asset{Data: data, Format: sniffFormat(data)}, nil
	}
	return nil, errEmptyImageResponse
}

// describeAPIError keeps the provider's error code and type in the message so
// content-policy rejections stay detectable after wrapping.
func describeAPIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	parts := []string{fmt.Sprintf("status %d", apiErr.StatusCode)}
	if apiErr.Code != "" {
		parts = append(parts, "code "+apiErr.Code)
	}
	if apiErr.Type != "" {
		parts = append(parts, "type "+apiErr.Type)
	}
	if apiErr.Message != "" {
		parts = append(parts, apiErr.Message)
	}
	return fmt.Errorf("%s: %w", strings.Join(parts, ", "), err)
}

func sniffFormat(data []byte) string {
	ct := http.DetectContentType(data)
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return "image/png"
}

func extensionFor(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

var _ Generator = (*OpenAIGenerator)(nil)
