package image

import (
	"fmt"
	"strings"
)

// PrimaryPrompt composes the instruction sent to the primary provider. A custom
// prompt replaces the style-derived default entirely.
func PrimaryPrompt(style Style, custom string, hasSource bool) string {
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom
	}
	var lines []string
	if hasSource {
		lines = append(lines, fmt.Sprintf("Transform the provided photo into %s.", style.Description))
		lines = append(lines, "Keep every person recognizable and preserve poses, expressions and composition.")
	} else {
		lines = append(lines, fmt.Sprintf("Create a family portrait in the style of %s.", style.Description))
	}
	lines = append(lines, "Warm, tender mood suitable for a maternity keepsake. No text, no watermark.")
	return strings.Join(lines, " ")
}

// SecondaryPrompt picks the prompt for the secondary provider: the custom
// prompt when given, otherwise the style template.
func SecondaryPrompt(style Style, custom string) string {
	if custom = strings.TrimSpace(custom); custom != "" {
		return custom
	}
	return style.SecondaryPrompt()
}
