// Package markdown turns model output into HTML fragments for the browser.
//
// Rendering tries a chain of renderers and keeps the first non-empty result,
// so a fragment is always produced, even for input a renderer chokes on.
package markdown

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	strip "github.com/grokify/html-strip-tags-go"
	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/mwiater/concilium/internal/logging"
)

// Renderer converts Markdown source to an HTML fragment.
type Renderer interface {
	Name() string
	Render(src string) (string, error)
}

type goldmarkRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewGoldmark returns the primary CommonMark renderer with GFM tables,
// strikethrough, autolinks and task lists. Raw HTML in the source is kept
// as HTML and the result is sanitized, so rendering already rendered output
// gives the same fragment back.
func NewGoldmark() Renderer {
	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(gmhtml.WithUnsafe()),
	)
	return goldmarkRenderer{md: md, policy: bluemonday.UGCPolicy()}
}

func (goldmarkRenderer) Name() string { return "goldmark" }

func (r goldmarkRenderer) Render(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return string(r.policy.SanitizeBytes(buf.Bytes())), nil
}

type blackfridayRenderer struct {
	policy *bluemonday.Policy
}

// NewBlackfriday returns the fallback renderer. Its output passes through a
// bluemonday UGC policy because blackfriday keeps raw HTML.
func NewBlackfriday() Renderer {
	return blackfridayRenderer{policy: bluemonday.UGCPolicy()}
}

func (blackfridayRenderer) Name() string { return "blackfriday" }

func (r blackfridayRenderer) Render(src string) (string, error) {
	out := blackfriday.Run([]byte(src))
	return string(r.policy.SanitizeBytes(out)), nil
}

// Converter runs renderers in order.
type Converter struct {
	renderers []Renderer
}

// NewConverter builds a Converter. With no renderers it uses goldmark then
// blackfriday.
func NewConverter(renderers ...Renderer) *Converter {
	if len(renderers) == 0 {
		renderers = []Renderer{NewGoldmark(), NewBlackfriday()}
	}
	return &Converter{renderers: renderers}
}

var defaultConverter = NewConverter()

// Render converts src with the default renderer chain.
func Render(src string) string {
	return defaultConverter.Render(src)
}

// Render returns the first renderer output that is not empty after tag
// stripping. When every renderer fails or yields nothing visible, src is
// returned escaped inside a <pre> block.
func (c *Converter) Render(src string) string {
	for _, r := range c.renderers {
		out, err := safeRender(r, src)
		if err != nil {
			logging.LogEvent("[MARKDOWN] %s failed: %v", r.Name(), err)
			continue
		}
		if !IsEmpty(out) {
			return out
		}
	}
	return Preformatted(src)
}

// Preformatted wraps escaped src in a <pre> block.
func Preformatted(src string) string {
	return "<pre>" + html.EscapeString(src) + "</pre>"
}

// IsEmpty reports whether an HTML fragment has no visible text once tags
// are removed, entities decoded and whitespace collapsed.
func IsEmpty(fragment string) bool {
	return VisibleText(fragment) == ""
}

// VisibleText returns the text content of an HTML fragment with runs of
// whitespace collapsed to single spaces.
func VisibleText(fragment string) string {
	text := html.UnescapeString(strip.StripTags(fragment))
	return strings.Join(strings.Fields(text), " ")
}

func safeRender(r Renderer, src string) (out string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return r.Render(src)
}
