package loader

import (
	"errors"

	"qvrag/internal/domain"
)

var errInvalidUTF8 = errors.New("content is not valid UTF-8")

// Text passes decoded content through untouched.
type Text struct{}

func (Text) Format() domain.Format { return domain.FormatText }

func (Text) Load(data []byte) (string, error) { return decodeUTF8(data) }

// Markdown is read as plain text; headings, fences and tables stay literal.
type Markdown struct{}

func (Markdown) Format() domain.Format { return domain.FormatMarkdown }

func (Markdown) Load(data []byte) (string, error) { return decodeUTF8(data) }
