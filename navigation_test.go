package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNavTree() *Tree {
	return &Tree{Children: []*Node{
		fileNode("Home.md", "Home"),
		dirNode("guides", "Guides", fileNode("guides/setup.md", "Setup"), fileNode("guides/faq.md", "")),
	}}
}

func TestRenderNavigation(t *testing.T) {
	html := renderNavigation(testNavTree(), "guides/setup.md")

	assert.True(t, strings.HasPrefix(html, `<ul class="nav">`))
	assert.Contains(t, html, `<li class="nav-file"><a href="#Home.md">Home</a></li>`)
	assert.Contains(t, html, `<li class="nav-dir open"><a href="#guides" class="dropdown-toggle">Guides</a>`)
	assert.Contains(t, html, `<li class="nav-file active"><a href="#guides/setup.md">Setup</a></li>`)
	assert.Contains(t, html, `<a href="#guides/faq.md">faq.md</a>`, "untitled nodes fall back to the file name")
	assert.Equal(t, 1, strings.Count(html, "active"))
}

func TestRenderNavigationEscapes(t *testing.T) {
	tree := &Tree{Children: []*Node{fileNode(`x"><script>.md`, "<b>bold</b>")}}
	html := renderNavigation(tree, "")
	assert.NotContains(t, html, "<script>")
	assert.NotContains(t, html, "<b>")
	assert.Contains(t, html, "&lt;b&gt;bold&lt;/b&gt;")
}

func TestRenderNavigationEmpty(t *testing.T) {
	assert.Equal(t, `<ul class="nav"></ul>`, renderNavigation(&Tree{}, ""))
}

func TestRenderNavigationIsPure(t *testing.T) {
	tree := testNavTree()
	require.Equal(t, renderNavigation(tree, "Home.md"), renderNavigation(tree, "Home.md"))
	assert.Equal(t, testNavTree(), tree)
}

func TestRenderOutline(t *testing.T) {
	out := renderOutline(testNavTree(), "guides/setup.md")
	assert.Equal(t,
		"  Home (Home.md)\n"+
			"  Guides/ (guides)\n"+
			"*   Setup (guides/setup.md)\n"+
			"    faq.md (guides/faq.md)\n",
		out)
}
