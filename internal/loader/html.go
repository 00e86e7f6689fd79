package loader

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"qvrag/internal/domain"
)

// HTML strips markup and keeps visible text in document order.
type HTML struct{}

func (HTML) Format() domain.Format { return domain.FormatHTML }

const invisible = "script, style, noscript, template, iframe, svg"

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "td": true, "th": true, "title": true, "tr": true, "ul": true,
}

func (HTML) Load(data []byte) (string, error) {
	src, err := decodeUTF8(data)
	if err != nil {
		return "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find(invisible).Remove()

	var b strings.Builder
	walk(doc.Selection, &b)
	return collapseWhitespace(b.String()), nil
}

func walk(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, n *goquery.Selection) {
		name := goquery.NodeName(n)
		switch {
		case name == "#text":
			b.WriteString(strings.Map(spaceOut, n.Text()))
		case name == "#comment":
		case blockTags[name]:
			b.WriteByte('\n')
			walk(n, b)
			b.WriteByte('\n')
		default:
			walk(n, b)
		}
	})
}

// spaceOut turns line breaks inside text nodes into plain spaces so that only
// block boundaries start new lines.
func spaceOut(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	return r
}

// collapseWhitespace folds runs of spaces into one and drops empty lines.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if f := strings.Fields(line); len(f) > 0 {
			out = append(out, strings.Join(f, " "))
		}
	}
	return strings.Join(out, "\n")
}
