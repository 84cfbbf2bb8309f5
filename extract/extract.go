// Package extract turns raw page HTML into clean text or markdown.
// Adapters and the merge path use Normalize on extracted content; the
// browser layer uses Text to build page excerpts for diagnostics.
package extract

import (
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var stripPolicy = bluemonday.StrictPolicy()

// Normalize strips any markup from s and collapses runs of whitespace.
// Intercepted payloads sometimes carry HTML fragments in text fields.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	clean := stripPolicy.Sanitize(s)
	return strings.Join(strings.Fields(clean), " ")
}

// Text parses an HTML document and returns its visible text, skipping
// script, style, and head content.
func Text(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", fmt.Errorf("extract: parse html: %w", err)
	}
	var b strings.Builder
	collectText(doc, &b)
	return strings.Join(strings.Fields(b.String()), " "), nil
}

// Markdown converts an HTML fragment to markdown. On failure or empty
// output it falls back to plain-text extraction.
func Markdown(src string) string {
	md, err := htmltomarkdown.ConvertString(src)
	if err == nil && strings.TrimSpace(md) != "" {
		return strings.TrimSpace(md)
	}
	text, err := Text(src)
	if err != nil {
		return ""
	}
	return text
}

func collectText(n *html.Node, b *strings.Builder) {
	switch {
	case n.Type == html.TextNode:
		b.WriteString(n.Data)
		b.WriteByte(' ')
		return
	case n.Type == html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template:
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Excerpt truncates s to at most max runes, appending an ellipsis marker
// when it cut anything.
func Excerpt(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
