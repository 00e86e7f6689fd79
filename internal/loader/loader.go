// Package loader turns raw payloads into linear text, one loader per format.
package loader

import (
	"bytes"
	"os"
	"unicode/utf8"

	"qvrag/internal/domain"
)

var loaders = map[domain.Format]domain.Loader{
	domain.FormatText:     Text{},
	domain.FormatMarkdown: Markdown{},
	domain.FormatHTML:     HTML{},
	domain.FormatJSON:     JSON{},
}

// For returns the loader registered for format.
func For(format domain.Format) (domain.Loader, error) {
	l, ok := loaders[format]
	if !ok {
		return nil, domain.Errorf(domain.ErrUnsupportedFormat, "select loader", "", "no loader for format %q", format)
	}
	return l, nil
}

// LoadBytes decodes data with the loader for format.
func LoadBytes(format domain.Format, source string, data []byte) (string, error) {
	l, err := For(format)
	if err != nil {
		return "", err
	}
	text, err := l.Load(data)
	if err != nil {
		return "", domain.WrapError(domain.ErrLoadError, "load", source, err)
	}
	return text, nil
}

// LoadFile reads path and decodes it. An empty format is detected from the extension.
func LoadFile(path string, format domain.Format) (domain.Document, error) {
	if format == "" {
		f, err := domain.FormatFromPath(path)
		if err != nil {
			return domain.Document{}, err
		}
		format = f
	}
	if _, err := For(format); err != nil {
		return domain.Document{}, domain.WrapError(domain.ErrUnsupportedFormat, "load file", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, domain.WrapError(domain.ErrLoadError, "read file", path, err)
	}
	text, err := LoadBytes(format, path, data)
	if err != nil {
		return domain.Document{}, err
	}
	return domain.Document{Source: path, Text: text, Format: format}, nil
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// decodeUTF8 strips a byte order mark and rejects invalid encodings.
func decodeUTF8(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, bom)
	if !utf8.Valid(data) {
		return "", errInvalidUTF8
	}
	return string(data), nil
}
