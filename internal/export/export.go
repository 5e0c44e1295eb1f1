// Package export renders stored memories into interchange formats so
// conversational context can be moved between chat tools.
//
// Formatting is pure: no storage access, no input mutation, and identical
// input yields byte-identical output. Only the JSON format round-trips
// losslessly through the import pipeline; markdown, text, and conversation
// are display/continuation oriented and drop metadata, version, and
// inferred tags.
package export

import (
	"fmt"
	"sort"

	"github.com/yorbuachi72/valora/internal/models"
)

// Format names a target rendering.
type Format string

// Supported export formats.
const (
	FormatMarkdown     Format = "markdown"
	FormatText         Format = "text"
	FormatJSON         Format = "json"
	FormatConversation Format = "conversation"
)

// DefaultFormat is used when the caller does not specify one.
const DefaultFormat = FormatMarkdown

// Formatter renders a list of memories to a string in one format.
type Formatter interface {
	Format(memories []models.Memory) (string, error)
}

// registry maps format names to Formatter implementations.
var registry = map[Format]Formatter{
	FormatMarkdown:     &markdownFormatter{},
	FormatText:         &textFormatter{},
	FormatJSON:         &jsonFormatter{},
	FormatConversation: &conversationFormatter{},
}

// Render formats memories in the requested format, defaulting to markdown.
// Unknown formats are an error.
func Render(memories []models.Memory, format Format) (string, error) {
	if format == "" {
		format = DefaultFormat
	}
	f, ok := registry[format]
	if !ok {
		return "", fmt.Errorf("export: unknown format %q", format)
	}
	return f.Format(memories)
}

// ValidFormats returns the supported format names, sorted.
func ValidFormats() []string {
	formats := make([]string, 0, len(registry))
	for k := range registry {
		formats = append(formats, string(k))
	}
	sort.Strings(formats)
	return formats
}
