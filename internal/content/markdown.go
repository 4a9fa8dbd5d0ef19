package content

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// md renders GitHub flavoured markdown. Content is authored in the repo, so raw
// HTML inside markdown is passed through.
var md = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(
		goldmarkHTML.WithUnsafe(),
	),
)

var (
	leadingH1 = regexp.MustCompile(`(?is)^\s*<h1[^>]*>.*?</h1>\s*`)
	htmlTag   = regexp.MustCompile(`<[^>]*>`)
)

// RenderMarkdown converts markdown to HTML.
func RenderMarkdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// StripLeadingH1 drops the first heading when it opens the document. Page
// templates render the title themselves.
func StripLeadingH1(html string) string {
	return leadingH1.ReplaceAllString(html, "")
}

// Excerpt removes tags from s and keeps at most max runes.
func Excerpt(s string, max int) string {
	s = htmlTag.ReplaceAllString(s, "")
	r := []rune(s)
	if len(r) > max {
		r = r[:max]
	}
	return strings.TrimSpace(string(r))
}
