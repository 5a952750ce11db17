package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadTree(t *testing.T) {
	root := createDocTree(t, map[string]string{
		"Home.md":                 testMarkdownSimple,
		"b.md":                    testMarkdownSimple,
		"guides/setup.md":         testMarkdownSimple,
		"guides/setup.json":       `{"Title":"Getting started"}`,
		"guides/diagram.png":      "png",
		"guides/deep/nested.md":   testMarkdownSimple,
		"empty/":                  "",
		".git/HEAD.md":            testMarkdownSimple,
		".hidden.md":              testMarkdownSimple,
		"node_modules/pkg/doc.md": testMarkdownSimple,
		"notes.txt":               "text",
	})

	tree, err := readTree(root, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"empty", "guides", "Home.md", "b.md"}, topPaths(tree))

	_, guides := tree.root("guides")
	require.NotNil(t, guides)
	assert.Equal(t, NodeDir, guides.NodeType)
	assert.Equal(t, "guides", guides.Title)
	require.Len(t, guides.Children, 2)
	assert.Equal(t, "guides/deep", guides.Children[0].Path, "directories sort first")
	assert.Equal(t, "guides/setup.md", guides.Children[1].Path)
	assert.Equal(t, "Getting started", guides.Children[1].Title)

	require.Len(t, guides.Children[0].Children, 1, "the reader itself is not depth limited")

	_, empty := tree.root("empty")
	require.NotNil(t, empty)
	assert.NotNil(t, empty.Children)
	assert.Empty(t, empty.Children)

	_, home := tree.root("Home.md")
	assert.Equal(t, "Home", home.Title, "title defaults to the file stem")
}

func topPaths(tree *Tree) []string {
	var out []string
	for _, n := range tree.Children {
		out = append(out, n.Path)
	}
	return out
}

func TestConvertNodeMetadata(t *testing.T) {
	root := createDocTree(t, map[string]string{
		"good.md":    testMarkdownSimple,
		"good.json":  `{"Title":"Good title"}`,
		"bad.md":     testMarkdownSimple,
		"bad.json":   `{"Title":`,
		"blank.md":   testMarkdownSimple,
		"blank.json": `{"Title":""}`,
	})

	node := func(name string) *Node {
		return convertNode(filepath.Join(root, name), name, false, discardLogger())
	}
	assert.Equal(t, "Good title", node("good.md").Title)
	assert.Equal(t, "bad", node("bad.md").Title)
	assert.Equal(t, "blank", node("blank.md").Title)
	assert.Nil(t, node("good.md").Children)

	dir := convertNode(root, "guides", true, discardLogger())
	assert.Equal(t, &Node{NodeType: NodeDir, Title: "guides", Path: "guides", Children: []*Node{}}, dir)
}

func TestReadTreeFeedsSynchronizer(t *testing.T) {
	root := createDocTree(t, map[string]string{
		"Home.md":          testMarkdownSimple,
		"guides/setup.md":  testMarkdownSimple,
		"guides/deep/x.md": testMarkdownSimple,
		"reference/api.md": testMarkdownSimple,
		"reference/cli.md": testMarkdownSimple,
	})
	tree, err := readTree(root, discardLogger())
	require.NoError(t, err)

	s, view := newTestSynchronizer("")
	s.Load(tree)

	assert.Equal(t, []string{"guides", "guides/setup.md", "reference", "reference/api.md", "reference/cli.md", "Home.md"}, s.Tree().paths())
	assert.Len(t, view.warnings, 1, "the nested folder is reported, not mirrored")
}

func TestIsDocument(t *testing.T) {
	assert.True(t, isDocument("a.md"))
	assert.True(t, isDocument("dir/A.MD"))
	assert.False(t, isDocument("a.markdown"))
	assert.False(t, isDocument("a.md.txt"))
	assert.Equal(t, "guides/setup", stem("guides/setup.md"))
	assert.Equal(t, ".hidden", stem(".hidden"))
}
