package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	ErrOutsideRoot = errors.New("path escapes the document root")
	ErrNotDocument = errors.New("not a markdown document")
)

// markdownRenderer turns documents into sanitized HTML fragments
type markdownRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

func newMarkdownRenderer() *markdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.Typographer,
			highlighting.NewHighlighting(
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)

	// raw HTML is allowed through goldmark and cleaned here instead
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()
	policy.AllowAttrs("id").Globally()
	// GFM task list items
	policy.AllowAttrs("type").Matching(regexp.MustCompile(`^checkbox$`)).OnElements("input")
	policy.AllowAttrs("checked", "disabled").OnElements("input")

	return &markdownRenderer{md: md, policy: policy}
}

func (r *markdownRenderer) render(source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}
	return r.policy.SanitizeBytes(buf.Bytes()), nil
}

// renderDocument renders the document at the slash-separated relPath.
// An empty path renders home.
func (r *markdownRenderer) renderDocument(root, relPath, home string) ([]byte, error) {
	absPath, err := resolveDocument(root, relPath, home)
	if err != nil {
		return nil, err
	}
	source, err := os.ReadFile(absPath)
	if err != nil {
		return nil, err
	}
	return r.render(source)
}

// resolveDocument maps a content path to a file inside root
func resolveDocument(root, relPath, home string) (string, error) {
	relPath = strings.Trim(relPath, "/")
	if relPath == "" {
		relPath = home
	}
	if strings.ContainsRune(relPath, 0) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, relPath)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve document root: %w", err)
	}
	absPath := filepath.Join(rootAbs, filepath.FromSlash(relPath))
	if !within(rootAbs, absPath) || !insideRoot(rootAbs, absPath) {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, relPath)
	}
	if !isDocument(absPath) {
		return "", fmt.Errorf("%w: %q", ErrNotDocument, relPath)
	}
	return absPath, nil
}
