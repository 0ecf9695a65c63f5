package image

import (
	"strings"
	"testing"

	"createtree/internal/infra"
)

func TestCatalogResolveKnownKey(t *testing.T) {
	c := NewCatalog(nil)
	style, ok := c.Resolve("ghibli")
	if !ok {
		t.Fatalf("expected ghibli to be a known style")
	}
	if !strings.Contains(style.Description, "Ghibli") {
		t.Fatalf("unexpected description %q", style.Description)
	}
	if !strings.Contains(style.SecondaryPrompt(), style.Description) {
		t.Fatalf("secondary prompt should embed the description: %q", style.SecondaryPrompt())
	}
}

func TestCatalogResolveUnknownKeyFallsBackToRawKey(t *testing.T) {
	c := NewCatalog(nil)
	for _, key := range []string{"neon-dream", "Ghibli", "ghibli "} {
		style, ok := c.Resolve(key)
		if key == "ghibli " {
			// Surrounding whitespace is trimmed before the exact match.
			if !ok {
				t.Fatalf("expected %q to resolve after trimming", key)
			}
			continue
		}
		if ok {
			t.Fatalf("expected %q to be unknown", key)
		}
		if style.Description != strings.TrimSpace(key)+" style" {
			t.Fatalf("description for %q = %q", key, style.Description)
		}
		if style.SecondaryPrompt() == "" {
			t.Fatalf("unknown style should still render a default prompt")
		}
	}
}

func TestCatalogOverrides(t *testing.T) {
	c := NewCatalog(map[string]infra.StyleConfig{
		"ghibli":   {Description: "custom ghibli"},
		"hanbok":   {Description: "traditional Korean hanbok portrait", Prompt: "A serene %s in a palace garden"},
		"no-descr": {},
	})

	if s, _ := c.Resolve("ghibli"); s.Description != "custom ghibli" || s.Template == "" {
		t.Fatalf("override should replace description and keep template: %+v", s)
	}
	s, ok := c.Resolve("hanbok")
	if !ok || s.SecondaryPrompt() != "A serene traditional Korean hanbok portrait in a palace garden" {
		t.Fatalf("unexpected hanbok style: %+v (%q)", s, s.SecondaryPrompt())
	}
	if s, _ := c.Resolve("no-descr"); s.Description != "no-descr style" {
		t.Fatalf("entry without description = %+v", s)
	}

	list := c.List()
	for i := 1; i < len(list); i++ {
		if list[i-1].Key > list[i].Key {
			t.Fatalf("styles not sorted: %q before %q", list[i-1].Key, list[i].Key)
		}
	}
}

func TestPrimaryPromptPrefersCustomPrompt(t *testing.T) {
	style := Style{Key: "sketch", Description: "pencil sketch"}
	if got := PrimaryPrompt(style, "  draw us as astronauts ", true); got != "draw us as astronauts" {
		t.Fatalf("custom prompt should win, got %q", got)
	}
	got := PrimaryPrompt(style, "", true)
	if !strings.Contains(got, "pencil sketch") || !strings.Contains(got, "provided photo") {
		t.Fatalf("unexpected composed prompt %q", got)
	}
}

func TestSecondaryPromptKeepsExtraVerbsLiteral(t *testing.T) {
	c := NewCatalog(map[string]infra.StyleConfig{
		"double":  {Description: "woodcut print", Prompt: "A %s of a family, 100% handmade, %s finish"},
		"verbose": {Description: "mosaic", Prompt: "A %d tile %v mosaic"},
	})

	s, _ := c.Resolve("double")
	if got, want := s.SecondaryPrompt(), "A woodcut print of a family, 100% handmade, %s finish"; got != want {
		t.Fatalf("SecondaryPrompt() = %q, want %q", got, want)
	}
	s, _ = c.Resolve("verbose")
	got := s.SecondaryPrompt()
	if strings.Contains(got, "%!") || got != "A %d tile %v mosaic" {
		t.Fatalf("template without %%s should be used verbatim, got %q", got)
	}
}
