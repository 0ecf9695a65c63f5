package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// DefaultDurationSeconds applies when a music request omits the duration.
	DefaultDurationSeconds = 120
	MinDurationSeconds     = 30
	MaxDurationSeconds     = 480
	// MaxPromptRunes bounds prompt and custom prompt text.
	MaxPromptRunes = 3000
	// DefaultLanguage is used when neither the request nor the locale names one.
	DefaultLanguage = "en"

	VocalFemale = "female"
	VocalMale   = "male"
	VocalNone   = "none"

	ModelAuto  = "auto"
	ModelDallE = "dall-e"

	titleWords = 6
)

// GenerationParams is the validated input of a job. It is treated as an
// immutable value once a job holds it; use Clone before handing it out.
type GenerationParams struct {
	Prompt          string            `json:"prompt,omitempty"`
	Style           string            `json:"style,omitempty"`
	DurationSeconds int               `json:"duration,omitempty"`
	Language        string            `json:"language,omitempty"`
	Vocal           string            `json:"vocal,omitempty"`
	Title           string            `json:"title,omitempty"`
	CustomPrompt    string            `json:"custom_prompt,omitempty"`
	ModelPreference string            `json:"model,omitempty"`
	SourceImage     string            `json:"source_image,omitempty"`
	Extra           map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy.
func (p GenerationParams) Clone() GenerationParams {
	out := p
	if p.Extra != nil {
		out.Extra = make(map[string]string, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Instrumental reports whether the music request asks for no vocals.
func (p GenerationParams) Instrumental() bool {
	return p.Vocal == VocalNone
}

// Seconds decodes a duration given either as a JSON number or a numeric string.
type Seconds int

// UnmarshalJSON implements json.Unmarshaler.
func (s *Seconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = 0
		return nil
	}
	if data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		raw = strings.TrimSpace(raw)
		if raw == "" {
			*s = 0
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%w: duration %q is not a number", ErrInvalidParams, raw)
		}
		*s = Seconds(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: duration must be an integer", ErrInvalidParams)
	}
	*s = Seconds(n)
	return nil
}

// NormalizeMusic validates music parameters in place and applies defaults.
// locale is the caller's preferred language, used when Language is empty.
func (p *GenerationParams) NormalizeMusic(locale string) error {
	p.Prompt = strings.TrimSpace(p.Prompt)
	if p.Prompt == "" {
		return fmt.Errorf("%w: prompt is required", ErrInvalidParams)
	}
	if utf8.RuneCountInString(p.Prompt) > MaxPromptRunes {
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidParams, MaxPromptRunes)
	}
	p.Style = strings.TrimSpace(p.Style)
	if p.DurationSeconds == 0 {
		p.DurationSeconds = DefaultDurationSeconds
	}
	if p.DurationSeconds < MinDurationSeconds || p.DurationSeconds > MaxDurationSeconds {
		return fmt.Errorf("%w: duration must be between %d and %d seconds", ErrInvalidParams, MinDurationSeconds, MaxDurationSeconds)
	}
	vocal, err := normalizeVocal(p.Vocal)
	if err != nil {
		return err
	}
	p.Vocal = vocal
	p.Language = normalizeLanguage(p.Language, locale)
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		p.Title = DefaultTitle(p.Prompt, p.Language)
	}
	return nil
}

// NormalizeImage validates image transform parameters in place.
func (p *GenerationParams) NormalizeImage() error {
	p.Style = strings.TrimSpace(p.Style)
	p.CustomPrompt = strings.TrimSpace(p.CustomPrompt)
	if p.Style == "" && p.CustomPrompt == "" {
		return fmt.Errorf("%w: style or prompt is required", ErrInvalidParams)
	}
	if utf8.RuneCountInString(p.CustomPrompt) > MaxPromptRunes {
		return fmt.Errorf("%w: prompt exceeds %d characters", ErrInvalidParams, MaxPromptRunes)
	}
	model, err := NormalizeModelPreference(p.ModelPreference)
	if err != nil {
		return err
	}
	p.ModelPreference = model
	return nil
}

// NormalizeModelPreference maps free-form model hints to ModelAuto or ModelDallE.
func NormalizeModelPreference(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ModelAuto, "gpt-image", "gpt-image-1":
		return ModelAuto, nil
	case ModelDallE, "dall-e-3", "dalle", "dalle3":
		return ModelDallE, nil
	default:
		return "", fmt.Errorf("%w: unsupported model %q", ErrInvalidParams, raw)
	}
}

func normalizeVocal(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", VocalFemale, "woman":
		return VocalFemale, nil
	case VocalMale, "man":
		return VocalMale, nil
	case VocalNone, "instrumental", "no":
		return VocalNone, nil
	default:
		return "", fmt.Errorf("%w: unsupported vocal %q", ErrInvalidParams, raw)
	}
}

func normalizeLanguage(requested, locale string) string {
	for _, candidate := range []string{requested, locale} {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		tag, err := language.Parse(candidate)
		if err != nil {
			continue
		}
		base, _ := tag.Base()
		return base.String()
	}
	return DefaultLanguage
}

// DefaultTitle derives a track title from the first words of the prompt.
func DefaultTitle(prompt, lang string) string {
	words := strings.Fields(prompt)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.Und
	}
	return cases.Title(tag).String(strings.Join(words, " "))
}
