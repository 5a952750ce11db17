package main

import (
	"errors"
	"fmt"
	"strings"
)

// NodeType distinguishes files from directories in the navigation tree
type NodeType string

const (
	NodeFile NodeType = "file"
	NodeDir  NodeType = "dir"
)

// Node is one entry in the navigation tree. Children is only populated for
// directories, and a directory's children are always files.
type Node struct {
	NodeType NodeType
	Title    string
	Path     string
	Children []*Node `json:",omitempty"`
}

// Tree is the two-level forest held by the mirror. The JSON shape matches
// the snapshot document served at tree.json.
type Tree struct {
	Children []*Node
}

var (
	ErrEmptyPath       = errors.New("empty path")
	ErrMalformedPath   = errors.New("malformed path")
	ErrDepthExceeded   = errors.New("path nested more than one directory deep")
	ErrUnknownNodeType = errors.New("unknown node type")
)

// NodeKey is the validated two-level key of a tree entry. Child is empty for
// root entries.
type NodeKey struct {
	Root  string
	Child string
}

// parseNodeKey validates a slash-separated path and splits it into a key.
// Paths with more than two segments are rejected with ErrDepthExceeded.
func parseNodeKey(path string) (NodeKey, error) {
	if path == "" {
		return NodeKey{}, ErrEmptyPath
	}
	segments := strings.Split(path, "/")
	for _, s := range segments {
		if s == "" || s == "." || s == ".." {
			return NodeKey{}, fmt.Errorf("%w: %q", ErrMalformedPath, path)
		}
	}
	switch len(segments) {
	case 1:
		return NodeKey{Root: segments[0]}, nil
	case 2:
		return NodeKey{Root: segments[0], Child: segments[1]}, nil
	default:
		return NodeKey{}, fmt.Errorf("%w: %q has %d segments", ErrDepthExceeded, path, len(segments))
	}
}

// Depth is 1 for root entries and 2 for directory children
func (k NodeKey) Depth() int {
	if k.Child == "" {
		return 1
	}
	return 2
}

// Path joins the key back into its wire form
func (k NodeKey) Path() string {
	if k.Child == "" {
		return k.Root
	}
	return k.Root + "/" + k.Child
}

// ParentPath is the path of the owning directory, empty for root entries
func (k NodeKey) ParentPath() string {
	if k.Child == "" {
		return ""
	}
	return k.Root
}

func (t NodeType) valid() bool {
	return t == NodeFile || t == NodeDir
}

// root returns the index and node of the root entry with the given path,
// or -1 and nil.
func (t *Tree) root(path string) (int, *Node) {
	for i, n := range t.Children {
		if n.Path == path {
			return i, n
		}
	}
	return -1, nil
}

// parentDir returns the root entry owning a child path, derived from the
// segment before the first slash. It does not check the node type.
func (t *Tree) parentDir(childPath string) *Node {
	idx := strings.Index(childPath, "/")
	if idx <= 0 {
		return nil
	}
	_, n := t.root(childPath[:idx])
	return n
}

// lookup finds the node addressed by key
func (t *Tree) lookup(key NodeKey) *Node {
	if key.Child == "" {
		_, n := t.root(key.Root)
		return n
	}
	parent := t.parentDir(key.Path())
	if parent == nil {
		return nil
	}
	_, n := childIndex(parent, key.Path())
	return n
}

func childIndex(dir *Node, path string) (int, *Node) {
	for i, c := range dir.Children {
		if c.Path == path {
			return i, c
		}
	}
	return -1, nil
}

// paths lists every path in the tree in display order
func (t *Tree) paths() []string {
	var out []string
	for _, n := range t.Children {
		out = append(out, n.Path)
		for _, c := range n.Children {
			out = append(out, c.Path)
		}
	}
	return out
}

// size counts all nodes, roots and children
func (t *Tree) size() int {
	return len(t.paths())
}

// clone deep-copies a node so the tree never aliases decoded wire data
func (n *Node) clone() *Node {
	c := &Node{NodeType: n.NodeType, Title: n.Title, Path: n.Path}
	if n.NodeType == NodeDir {
		c.Children = make([]*Node, 0, len(n.Children))
		for _, child := range n.Children {
			c.Children = append(c.Children, child.clone())
		}
	}
	return c
}

// displayName is the label used in the navigation
func (n *Node) displayName() string {
	if n.Title != "" {
		return n.Title
	}
	if i := strings.LastIndex(n.Path, "/"); i >= 0 {
		return n.Path[i+1:]
	}
	return n.Path
}
