package image

import (
	"sort"
	"strings"

	"createtree/internal/infra"
)

// Style is one catalog entry. Template is the prompt used by the secondary
// provider when the caller gave no custom prompt; it may contain one %s verb
// for the description.
type Style struct {
	Key         string `json:"key"`
	Description string `json:"description"`
	Template    string `json:"-"`
}

var builtinStyles = []Style{
	{Key: "ghibli", Description: "Studio Ghibli inspired hand-drawn anime", Template: "A gentle %s illustration of a happy family portrait with soft pastel skies and warm sunlight"},
	{Key: "disney", Description: "classic Disney animated feature", Template: "A heartwarming %s scene of a loving family, expressive eyes, rich colors"},
	{Key: "pixar", Description: "Pixar 3D animation", Template: "A cozy %s render of a family moment with soft global illumination"},
	{Key: "watercolor", Description: "delicate watercolor painting", Template: "A %s of a mother and baby with loose brush strokes and paper texture"},
	{Key: "oil-painting", Description: "classical oil painting", Template: "A %s portrait of a family with rich textures and warm lighting"},
	{Key: "pastel", Description: "soft pastel crayon drawing", Template: "A dreamy %s of a newborn nursery scene in muted tones"},
	{Key: "sketch", Description: "pencil sketch", Template: "A detailed %s of a family portrait with clean line work and light shading"},
	{Key: "vintage", Description: "vintage film photograph", Template: "A nostalgic %s of a family portrait with film grain and faded warm colors"},
	{Key: "fairytale", Description: "storybook fairytale illustration", Template: "A whimsical %s of a mother and child in an enchanted forest"},
}

const defaultStyleTemplate = "A beautiful family portrait rendered as %s, warm and tender mood"

// Catalog maps style keys to descriptions. Lookups are exact key matches.
type Catalog struct {
	styles map[string]Style
}

// NewCatalog returns the built-in catalog extended (or overridden) by the
// configured entries.
func NewCatalog(overrides map[string]infra.StyleConfig) *Catalog {
	c := &Catalog{styles: make(map[string]Style, len(builtinStyles)+len(overrides))}
	for _, s := range builtinStyles {
		c.styles[s.Key] = s
	}
	for key, cfg := range overrides {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		entry := c.styles[key]
		entry.Key = key
		if d := strings.TrimSpace(cfg.Description); d != "" {
			entry.Description = d
		}
		if p := strings.TrimSpace(cfg.Prompt); p != "" {
			entry.Template = p
		}
		if entry.Description == "" {
			entry.Description = key + " style"
		}
		c.styles[key] = entry
	}
	return c
}

// Resolve returns the style for key. Unknown keys resolve to "<key> style"
// with the default template; ok reports whether the key was in the catalog.
func (c *Catalog) Resolve(key string) (Style, bool) {
	raw := strings.TrimSpace(key)
	if c != nil {
		if s, found := c.styles[raw]; found {
			return s, true
		}
	}
	return Style{Key: raw, Description: raw + " style"}, false
}

// List returns every style sorted by key.
func (c *Catalog) List() []Style {
	if c == nil {
		return nil
	}
	out := make([]Style, 0, len(c.styles))
	for _, s := range c.styles {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// SecondaryPrompt renders the style-specific default prompt. The first "%s"
// of the template takes the description; any other text, including further
// percent signs from configured templates, is kept literally.
func (s Style) SecondaryPrompt() string {
	tmpl := s.Template
	if strings.TrimSpace(tmpl) == "" {
		tmpl = defaultStyleTemplate
	}
	return strings.Replace(tmpl, "%s", s.Description, 1)
}
