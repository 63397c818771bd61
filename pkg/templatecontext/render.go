package templatecontext

import (
	"bytes"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// MarkupRenderer turns comment markup into HTML.
type MarkupRenderer interface {
	Render(source string) (string, error)
}

// GoldmarkRenderer renders comment markup as Markdown. Raw HTML in the source
// is escaped, never passed through.
type GoldmarkRenderer struct {
	md goldmark.Markdown
}

func NewGoldmarkRenderer() *GoldmarkRenderer {
	return &GoldmarkRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Linkify, extension.Strikethrough, extension.Table),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

func (r *GoldmarkRenderer) Render(source string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("rendering markup: %w", err)
	}
	return buf.String(), nil
}

var linkPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

// FallbackHTML renders text as escaped HTML with bare URLs turned into links
// and line breaks preserved. It cannot fail.
func FallbackHTML(source string) string {
	escaped := html.EscapeString(source)
	linked := linkPattern.ReplaceAllStringFunc(escaped, func(u string) string {
		return `<a href="` + u + `">` + u + `</a>`
	})
	return strings.ReplaceAll(linked, "\n", "<br/>\n")
}
