package main

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// pageView is everything the output page shows
type pageView struct {
	Tree       *Tree
	Route      string
	Loaded     bool
	Content    string
	Diagnostic *Diagnostic
	Warnings   []string
	Status     string
}

// pageSink publishes a rendered view
type pageSink interface {
	publish(v pageView) error
}

type pageTemplateData struct {
	Title      string
	Navigation template.HTML
	Route      string
	Loaded     bool
	Content    template.HTML
	Diagnostic *Diagnostic
	Warnings   []string
	Status     string
}

var pageTmpl = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<nav id="docnav-nav">{{.Navigation}}</nav>
{{if .Status}}<div class="alert alert-danger" role="alert">{{.Status}}</div>
{{end}}{{range .Warnings}}<div class="alert alert-warning" role="alert">{{.}}</div>
{{end}}<main id="docnav-content" data-route="{{.Route}}">
{{- if .Diagnostic}}
<div class="diagnostic">
<h2>status</h2>
<pre>{{.Diagnostic.StatusCode}}</pre>
<h2>statusText</h2>
<pre>{{.Diagnostic.StatusText}}</pre>
<h2>error</h2>
<pre>{{.Diagnostic.Detail}}</pre>
</div>
{{- else if .Loaded}}
{{.Content}}
{{- end}}
</main>
</body>
</html>
`))

// renderPage renders the whole output document. Content is trusted as it
// is sanitized by the server before it is sent.
func renderPage(v pageView) (string, error) {
	data := pageTemplateData{
		Title:      v.Route,
		Navigation: template.HTML(renderNavigation(v.Tree, v.Route)),
		Route:      v.Route,
		Loaded:     v.Loaded,
		Content:    template.HTML(v.Content),
		Diagnostic: v.Diagnostic,
		Warnings:   v.Warnings,
		Status:     v.Status,
	}
	var buf bytes.Buffer
	if err := pageTmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}

// fileSink rewrites an HTML file on every render
type fileSink struct {
	path string
}

func (s fileSink) publish(v pageView) error {
	html, err := renderPage(v)
	if err != nil {
		return err
	}
	return atomicWriteFile(s.path, html)
}

const pageFileMode = 0o644

// outlineSink prints the navigation outline and content status
type outlineSink struct {
	w io.Writer
}

func (s outlineSink) publish(v pageView) error {
	var b strings.Builder
	fmt.Fprintf(&b, "--- route: %s\n", v.Route)
	if v.Status != "" {
		fmt.Fprintf(&b, "!! %s\n", v.Status)
	}
	for _, w := range v.Warnings {
		fmt.Fprintf(&b, "!  %s\n", w)
	}
	b.WriteString(renderOutline(v.Tree, v.Route))
	switch {
	case v.Diagnostic != nil:
		fmt.Fprintf(&b, "content: %d %s: %s\n", v.Diagnostic.StatusCode, v.Diagnostic.StatusText, v.Diagnostic.Detail)
	case v.Loaded:
		fmt.Fprintf(&b, "content: %d bytes\n", len(v.Content))
	default:
		b.WriteString("content: loading\n")
	}
	_, err := io.WriteString(s.w, b.String())
	return err
}

// atomicWriteFile replaces path through a temp file in the same directory,
// so a reader never sees a half-written page.
func atomicWriteFile(path, content string) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), ".docnav-page-*")
	if err != nil {
		return fmt.Errorf("cannot stage page %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err = f.WriteString(content); err != nil {
		return fmt.Errorf("cannot write page %s: %w", path, err)
	}
	// CreateTemp uses 0600; the page is meant to be opened by a browser
	if err = f.Chmod(pageFileMode); err != nil {
		return fmt.Errorf("cannot set mode of page %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("cannot flush page %s: %w", path, err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("cannot publish page %s: %w", path, err)
	}
	return nil
}
