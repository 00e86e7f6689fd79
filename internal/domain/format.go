package domain

import (
	"path/filepath"
	"strings"
)

// Format tags the input formats a Loader understands.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

var formatAliases = map[string]Format{
	"text":     FormatText,
	"txt":      FormatText,
	"markdown": FormatMarkdown,
	"md":       FormatMarkdown,
	"html":     FormatHTML,
	"htm":      FormatHTML,
	"json":     FormatJSON,
}

// ParseFormat resolves a format tag or file extension (with or without the dot).
func ParseFormat(tag string) (Format, error) {
	key := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "."))
	if f, ok := formatAliases[key]; ok {
		return f, nil
	}
	return "", Errorf(ErrUnsupportedFormat, "parse format", "", "unknown format %q", tag)
}

// FormatFromPath detects the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := filepath.Ext(path)
	if ext == "" {
		return "", Errorf(ErrUnsupportedFormat, "detect format", path, "file has no extension")
	}
	f, err := ParseFormat(ext)
	if err != nil {
		return "", WrapError(ErrUnsupportedFormat, "detect format", path, err)
	}
	return f, nil
}
