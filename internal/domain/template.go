package domain

import (
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultStyle    = "cinematic"
	defaultDuration = 10
)

// Template describes the look of the requested video. Only ID is mandatory;
// the remaining fields default when the render request is built.
type Template struct {
	ID          string
	Title       string
	Prompt      string
	Style       string
	Duration    int
	Orientation string
}

// AspectRatio derives the render aspect ratio from the template orientation.
func (t Template) AspectRatio() string {
	if t.Orientation == "portrait" {
		return "9:16"
	}
	return "16:9"
}

// RenderPrompt returns the generation prompt, deriving one from the template
// title when none was authored.
func (t Template) RenderPrompt() string {
	if t.Prompt != "" {
		return t.Prompt
	}
	title := cases.Title(language.Und).String(t.Title)
	return fmt.Sprintf("Create a cinematic property video showcasing %s", title)
}

// RenderStyle returns the style tag, defaulted to "cinematic".
func (t Template) RenderStyle() string {
	if t.Style != "" {
		return t.Style
	}
	return defaultStyle
}

// RenderDuration returns the clip duration in seconds, defaulted to 10.
func (t Template) RenderDuration() int {
	if t.Duration > 0 {
		return t.Duration
	}
	return defaultDuration
}
