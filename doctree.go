package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
)

// nodeMetadata is the optional sidecar <stem>.json next to a document
type nodeMetadata struct {
	Title string
}

// isDocument reports whether name is a markdown document. Everything else
// under the root is an asset and stays out of the tree.
func isDocument(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

// excludedDirs are build artifacts and dependencies that never hold
// documentation worth navigating
var excludedDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"venv":         true,
	"env":          true,
	"virtualenv":   true,
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// skipDir reports whether a directory named name stays out of the tree
func skipDir(name string) bool {
	return isHidden(name) || excludedDirs[name]
}

// stem strips the extension from a file name
func stem(name string) string {
	if i := strings.LastIndex(name, "."); i > 0 {
		return name[:i]
	}
	return name
}

// readMetadata loads the sidecar metadata of a document, or nil
func readMetadata(absPath string, logger *slog.Logger) *nodeMetadata {
	metaPath := stem(absPath) + ".json"
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil
	}
	var meta nodeMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		logger.Warn("Cannot parse document metadata", "path", metaPath, "error", err)
		return nil
	}
	return &meta
}

// insideRoot reports whether absPath, after resolving symlinks, is rootAbs
// or below it. Paths that do not exist yet are judged by their name alone.
func insideRoot(rootAbs, absPath string) bool {
	real, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return within(rootAbs, absPath)
	}
	if realRoot, err := filepath.EvalSymlinks(rootAbs); err == nil {
		rootAbs = realRoot
	}
	return within(rootAbs, real)
}

func within(root, p string) bool {
	return p == root || strings.HasPrefix(p, root+string(filepath.Separator))
}

// convertNode builds the node for one directory or document. relPath is
// slash-separated and relative to the document root.
func convertNode(absPath, relPath string, isDir bool, logger *slog.Logger) *Node {
	name := path.Base(relPath)
	if isDir {
		return &Node{NodeType: NodeDir, Title: name, Path: relPath, Children: []*Node{}}
	}
	title := stem(name)
	if meta := readMetadata(absPath, logger); meta != nil && meta.Title != "" {
		title = meta.Title
	}
	return &Node{NodeType: NodeFile, Title: title, Path: relPath}
}

// readTree walks root and returns every directory and document as a tree.
// The walk itself is not depth-limited; clients decide what they display.
func readTree(root string, logger *slog.Logger) (*Tree, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve document root: %w", err)
	}

	var mu sync.Mutex
	all := make(map[string]*Node)

	conf := &fastwalk.Config{Follow: false}
	err = fastwalk.Walk(conf, rootAbs, func(fullPath string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn("Skipping unreadable path", "path", fullPath, "error", walkErr)
			return nil
		}
		if fullPath == rootAbs {
			return nil
		}
		if d.IsDir() && skipDir(d.Name()) {
			return fastwalk.SkipDir
		}
		if !d.IsDir() && (isHidden(d.Name()) || !isDocument(d.Name())) {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 && !insideRoot(rootAbs, fullPath) {
			logger.Warn("Skipping symlink that leaves the document root", "path", fullPath)
			return nil
		}

		rel, err := filepath.Rel(rootAbs, fullPath)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		node := convertNode(fullPath, rel, d.IsDir(), logger)

		// fastwalk calls this function from several goroutines
		mu.Lock()
		all[rel] = node
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk document root: %w", err)
	}

	return buildTree(all), nil
}

// buildTree links the flat path map into a tree. Nodes whose parent
// directory is missing are dropped.
func buildTree(all map[string]*Node) *Tree {
	tree := &Tree{Children: []*Node{}}
	for rel, node := range all {
		dir := path.Dir(rel)
		if dir == "." {
			tree.Children = append(tree.Children, node)
			continue
		}
		if parent, ok := all[dir]; ok && parent.NodeType == NodeDir {
			parent.Children = append(parent.Children, node)
		}
	}
	sortNodes(tree.Children)
	return tree
}

// sortNodes orders directories first, then by name, recursively
func sortNodes(nodes []*Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if (nodes[i].NodeType == NodeDir) != (nodes[j].NodeType == NodeDir) {
			return nodes[i].NodeType == NodeDir
		}
		return nodes[i].Path < nodes[j].Path
	})
	for _, n := range nodes {
		if n.NodeType == NodeDir {
			sortNodes(n.Children)
		}
	}
}
