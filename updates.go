package main

import (
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// updateTranslator turns filesystem changes into push events. It tracks
// which paths clients know about so a write becomes UPDATED, a first
// create becomes CREATED and only known paths produce DELETED. It is used
// from the single event pump goroutine.
type updateTranslator struct {
	root   string
	known  map[string]NodeType
	logger *slog.Logger
}

func newUpdateTranslator(root string, logger *slog.Logger) (*updateTranslator, error) {
	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &updateTranslator{
		root:   rootAbs,
		known:  make(map[string]NodeType),
		logger: logger,
	}, nil
}

// seed records every node of tree as known
func (t *updateTranslator) seed(tree *Tree) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			t.known[n.Path] = n.NodeType
			walk(n.Children)
		}
	}
	walk(tree.Children)
}

// relative returns the slash path of abs below the root, or false
func (t *updateTranslator) relative(abs string) (string, bool) {
	rel, err := filepath.Rel(t.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	segments := strings.Split(rel, "/")
	for i, segment := range segments {
		if isHidden(segment) || (i < len(segments)-1 && excludedDirs[segment]) {
			return "", false
		}
	}
	return rel, true
}

func (t *updateTranslator) translate(ev fsEvent) []Event {
	rel, ok := t.relative(ev.path)
	if !ok {
		return nil
	}

	if ev.op == fsRemove {
		return t.removed(rel)
	}

	info, err := os.Stat(ev.path)
	if err != nil {
		// gone again before we got to it; the remove event follows
		t.logger.Debug("Changed path vanished", "path", rel, "error", err)
		return nil
	}

	switch {
	case info.IsDir():
		if ev.op == fsWrite || excludedDirs[path.Base(rel)] {
			return nil
		}
		return []Event{t.upsert(ev.path, rel, true)}
	case isDocument(rel):
		return []Event{t.upsert(ev.path, rel, false)}
	case strings.EqualFold(filepath.Ext(rel), ".json"):
		// sidecar metadata changes the title of its document
		doc := stem(rel) + ".md"
		if _, known := t.known[doc]; !known {
			return nil
		}
		docAbs := filepath.Join(t.root, filepath.FromSlash(doc))
		return []Event{{Type: EventUpdated, Path: doc, Node: convertNode(docAbs, doc, false, t.logger)}}
	default:
		return nil
	}
}

func (t *updateTranslator) upsert(abs, rel string, isDir bool) Event {
	node := convertNode(abs, rel, isDir, t.logger)
	typ := EventCreated
	if _, known := t.known[rel]; known {
		typ = EventUpdated
	}
	t.known[rel] = node.NodeType
	return Event{Type: typ, Path: rel, Node: node}
}

// removed forgets rel and everything below it
func (t *updateTranslator) removed(rel string) []Event {
	if _, known := t.known[rel]; !known {
		return nil
	}
	delete(t.known, rel)
	prefix := rel + "/"
	for p := range t.known {
		if strings.HasPrefix(p, prefix) {
			delete(t.known, p)
		}
	}
	return []Event{{Type: EventDeleted, Path: rel}}
}
