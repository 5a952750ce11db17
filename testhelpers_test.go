package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Test markdown content constants
const (
	testMarkdownSimple        = "# Test"
	testMarkdownHeader        = "# Hello World\n\nThis is a **test**."
	testMarkdownTable         = "| A | B |\n|---|---|\n| 1 | 2 |"
	testMarkdownCode          = "```go\nfunc main() {}\n```"
	testMarkdownStrikethrough = "~~deleted~~"
	testMarkdownTaskList      = "- [x] Done\n- [ ] Todo"
	testMarkdownAutolink      = "https://example.com"

	// Security test paths
	testPathTraversal = "../../../etc/passwd"
	testPathNullByte  = "safe.md\x00/../../etc/passwd"
)

// discardLogger drops everything
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// createTestMarkdownFile creates a file, and its parent directories, below dir
func createTestMarkdownFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// createDocTree writes files (slash path -> content) into a fresh root.
// A path ending in "/" creates an empty directory.
func createDocTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		if strings.HasSuffix(name, "/") {
			require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(name)), 0755))
			continue
		}
		createTestMarkdownFile(t, root, name, content)
	}
	return root
}

// assertValidHTML checks for required HTML structure elements
func assertValidHTML(t *testing.T, html string) {
	t.Helper()
	for _, tag := range []string{"<!DOCTYPE html>", "<html", "<head>", "<body>", "</body>", "</html>"} {
		require.Contains(t, html, tag, "HTML missing required tag")
	}
}

func fileNode(path, title string) *Node {
	return &Node{NodeType: NodeFile, Title: title, Path: path}
}

func dirNode(path, title string, children ...*Node) *Node {
	if children == nil {
		children = []*Node{}
	}
	return &Node{NodeType: NodeDir, Title: title, Path: path, Children: children}
}

// recordingView records the callbacks the synchronizer makes
type recordingView struct {
	route    string
	reloads  []string
	resets   int
	changes  int
	warnings []string
}

func (v *recordingView) ActiveRoute() string { return v.route }
func (v *recordingView) Reload(path string)  { v.reloads = append(v.reloads, path) }
func (v *recordingView) ResetRoute()         { v.resets++; v.route = DefaultHome }
func (v *recordingView) TreeChanged()        { v.changes++ }
func (v *recordingView) Warn(msg string)     { v.warnings = append(v.warnings, msg) }
