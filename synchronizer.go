package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	ErrNestedDirectory    = errors.New("directories are only supported at the top level")
	ErrParentNotFound     = errors.New("parent directory not found")
	ErrParentNotDirectory = errors.New("parent is not a directory")
	ErrUnknownPath        = errors.New("unknown path")
)

// View receives the side effects of applied events. The mirror implements
// it on top of the router and the page renderer.
type View interface {
	// ActiveRoute is the document path currently displayed
	ActiveRoute() string
	// Reload re-fetches the displayed document
	Reload(path string)
	// ResetRoute navigates back to the home document
	ResetRoute()
	// TreeChanged marks the navigation for re-rendering
	TreeChanged()
}

// Warner surfaces warnings to the user, not just to the log
type Warner interface {
	Warn(msg string)
}

// Synchronizer owns every mutation of the tree. It is not safe for
// concurrent use; the mirror calls it from a single goroutine.
type Synchronizer struct {
	tree   *Tree
	view   View
	warner Warner
	logger *slog.Logger
}

func newSynchronizer(view View, warner Warner, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		tree:   &Tree{},
		view:   view,
		warner: warner,
		logger: logger,
	}
}

// Tree returns the current model. Callers must not mutate it.
func (s *Synchronizer) Tree() *Tree {
	return s.tree
}

// HandleMessage decodes one raw push message and applies it
func (s *Synchronizer) HandleMessage(data []byte) error {
	evt, err := decodeEvent(data)
	if err != nil {
		if errors.Is(err, ErrUnknownEventType) {
			s.logger.Warn("Ignoring push event of unknown type", "error", err)
			mirrorEventsTotal.WithLabelValues("unknown", "ignored").Inc()
		} else {
			s.logger.Error("Cannot decode push message", "error", err, "size", len(data))
			mirrorEventsTotal.WithLabelValues("malformed", "ignored").Inc()
		}
		return err
	}
	return s.Apply(evt)
}

// Apply applies one event in arrival order. Rejected and no-op events leave
// the tree untouched and are reported before the error is returned.
func (s *Synchronizer) Apply(evt Event) error {
	var err error
	switch evt.Type {
	case EventCreated:
		err = s.created(evt)
	case EventUpdated:
		err = s.updated(evt)
	case EventDeleted:
		err = s.deleted(evt)
	default:
		err = fmt.Errorf("%w: %d", ErrUnknownEventType, int(evt.Type))
	}
	s.report(evt.Type.String(), evt.Path, err)
	return err
}

// Load replaces the whole tree with a snapshot. Every root entry goes
// through the same insertion path as a live CREATED event.
func (s *Synchronizer) Load(snapshot *Tree) {
	s.tree = &Tree{}
	s.view.TreeChanged()
	if snapshot == nil {
		return
	}
	for _, n := range snapshot.Children {
		if n == nil {
			continue
		}
		_ = s.Apply(Event{Type: EventCreated, Path: n.Path, Node: n})
	}
}

func (s *Synchronizer) created(evt Event) error {
	key, err := parseNodeKey(evt.Path)
	if err != nil {
		return err
	}
	if evt.Node == nil {
		return fmt.Errorf("%w: %s", ErrMissingNodeInfo, evt.Path)
	}
	if err := s.insert(key, evt.Node); err != nil {
		return err
	}
	s.view.TreeChanged()
	return nil
}

func (s *Synchronizer) updated(evt Event) error {
	if s.view.ActiveRoute() == evt.Path {
		s.view.Reload(evt.Path)
	}

	key, err := parseNodeKey(evt.Path)
	if err != nil {
		// content updates never touch topology, so deep paths are harmless
		s.logger.Debug("Update outside the navigation tree", "path", evt.Path, "error", err)
		return nil
	}
	n := s.tree.lookup(key)
	if n == nil {
		return fmt.Errorf("%w: %s", ErrUnknownPath, evt.Path)
	}
	if evt.Node != nil && evt.Node.Title != "" && evt.Node.Title != n.Title {
		n.Title = evt.Node.Title
		s.view.TreeChanged()
	}
	return nil
}

func (s *Synchronizer) deleted(evt Event) error {
	key, err := parseNodeKey(evt.Path)
	if err != nil {
		return err
	}

	removed := s.remove(key)
	if routeWithin(s.view.ActiveRoute(), evt.Path) {
		s.view.ResetRoute()
	}
	if !removed {
		return fmt.Errorf("%w: %s", ErrUnknownPath, evt.Path)
	}
	s.view.TreeChanged()
	return nil
}

// insert places a copy of n at key, replacing any entry with the same path
// in place. Invalid directory children are reported and skipped.
func (s *Synchronizer) insert(key NodeKey, n *Node) error {
	if !n.NodeType.valid() {
		return fmt.Errorf("%w: %q at %s", ErrUnknownNodeType, n.NodeType, key.Path())
	}
	if n.Path != "" && n.Path != key.Path() {
		s.logger.Debug("Node info path differs from event path", "event_path", key.Path(), "node_path", n.Path)
	}

	node := &Node{NodeType: n.NodeType, Title: n.Title, Path: key.Path()}

	if key.Depth() == 2 {
		if n.NodeType == NodeDir {
			return fmt.Errorf("%w: %s", ErrNestedDirectory, key.Path())
		}
		parent := s.tree.parentDir(key.Path())
		if parent == nil {
			return fmt.Errorf("%w: %s for %s", ErrParentNotFound, key.ParentPath(), key.Path())
		}
		if parent.NodeType != NodeDir {
			return fmt.Errorf("%w: %s for %s", ErrParentNotDirectory, key.ParentPath(), key.Path())
		}
		if i, _ := childIndex(parent, node.Path); i >= 0 {
			parent.Children[i] = node
		} else {
			parent.Children = append(parent.Children, node)
		}
		return nil
	}

	if n.NodeType == NodeDir {
		node.Children = make([]*Node, 0, len(n.Children))
		for _, child := range n.Children {
			if child == nil {
				continue
			}
			if err := validChild(key, child); err != nil {
				s.report(EventCreated.String(), child.Path, err)
				continue
			}
			if i, _ := childIndex(node, child.Path); i >= 0 {
				node.Children[i] = child.clone()
				continue
			}
			node.Children = append(node.Children, child.clone())
		}
	}

	if i, _ := s.tree.root(node.Path); i >= 0 {
		s.tree.Children[i] = node
	} else {
		s.tree.Children = append(s.tree.Children, node)
	}
	return nil
}

// validChild checks that a snapshot child belongs directly under dir
func validChild(dir NodeKey, child *Node) error {
	key, err := parseNodeKey(child.Path)
	if err != nil {
		return err
	}
	if key.Depth() != 2 || key.Root != dir.Root {
		return fmt.Errorf("%w: %s is not a child of %s", ErrMalformedPath, child.Path, dir.Root)
	}
	if child.NodeType == NodeDir {
		return fmt.Errorf("%w: %s", ErrNestedDirectory, child.Path)
	}
	if !child.NodeType.valid() {
		return fmt.Errorf("%w: %q at %s", ErrUnknownNodeType, child.NodeType, child.Path)
	}
	return nil
}

// remove deletes the entry at key. Removing a directory drops its children
// with it since they are owned by the parent node.
func (s *Synchronizer) remove(key NodeKey) bool {
	if key.Depth() == 1 {
		i, _ := s.tree.root(key.Root)
		if i < 0 {
			return false
		}
		s.tree.Children = append(s.tree.Children[:i], s.tree.Children[i+1:]...)
		return true
	}
	parent := s.tree.parentDir(key.Path())
	if parent == nil {
		return false
	}
	i, _ := childIndex(parent, key.Path())
	if i < 0 {
		return false
	}
	parent.Children = append(parent.Children[:i], parent.Children[i+1:]...)
	return true
}

// report logs the outcome of one event. Depth violations are also shown to
// the user since the server advertises only one level of folders.
func (s *Synchronizer) report(typ, path string, err error) {
	switch {
	case err == nil:
		s.logger.Debug("Applied push event", "type", typ, "path", path)
		mirrorEventsTotal.WithLabelValues(typ, "applied").Inc()
	case errors.Is(err, ErrDepthExceeded), errors.Is(err, ErrNestedDirectory):
		s.logger.Warn("Rejected push event", "type", typ, "path", path, "error", err)
		mirrorEventsTotal.WithLabelValues(typ, "rejected").Inc()
		s.warner.Warn(fmt.Sprintf(
			"Received a %s event for %s. The path contains more than one level of folder hierarchy, which is not supported.",
			typ, path))
	case errors.Is(err, ErrUnknownPath), errors.Is(err, ErrParentNotFound), errors.Is(err, ErrParentNotDirectory):
		s.logger.Warn("Push event does not match the mirrored tree", "type", typ, "path", path, "error", err)
		mirrorEventsTotal.WithLabelValues(typ, "noop").Inc()
	default:
		s.logger.Warn("Rejected push event", "type", typ, "path", path, "error", err)
		mirrorEventsTotal.WithLabelValues(typ, "rejected").Inc()
	}
}

// routeWithin reports whether route is path itself or a document below it
func routeWithin(route, path string) bool {
	return route == path || strings.HasPrefix(route, path+"/")
}
