package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/fsnotify/fsnotify"
)

type fsOp int

const (
	fsCreate fsOp = iota + 1
	fsWrite
	fsRemove
)

func (op fsOp) String() string {
	switch op {
	case fsCreate:
		return "create"
	case fsWrite:
		return "write"
	case fsRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// fsEvent is one filesystem change under the document root
type fsEvent struct {
	op   fsOp
	path string
}

// watcherManager watches a directory tree recursively with proper cleanup
type watcherManager struct {
	mu      sync.Mutex
	current *fsnotify.Watcher
	cancel  context.CancelFunc
	events  chan fsEvent
	logger  *slog.Logger
}

func newWatcherManager(logger *slog.Logger) *watcherManager {
	return &watcherManager{
		events: make(chan fsEvent, 64),
		logger: logger,
	}
}

// Events delivers changes until the manager is closed
func (m *watcherManager) Events() <-chan fsEvent {
	return m.events
}

func (m *watcherManager) watchDirectory(rootDir string) error {
	m.mu.Lock()

	// Stop existing watcher (under lock)
	if m.cancel != nil {
		m.cancel()
	}
	if m.current != nil {
		m.current.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		cancel()
		m.mu.Unlock()
		return err
	}
	m.current = watcher

	if err := watcher.Add(rootDir); err != nil {
		if closeErr := watcher.Close(); closeErr != nil {
			m.logger.Warn("Failed to close watcher after add error", "error", closeErr)
		}
		cancel()
		m.current = nil
		m.cancel = nil
		m.mu.Unlock()
		return err
	}

	// Unlock before slow directory walk
	m.mu.Unlock()

	dirsToWatch, err := collectDirectories(rootDir)
	if err != nil {
		m.mu.Lock()
		if m.current == watcher {
			if closeErr := watcher.Close(); closeErr != nil {
				m.logger.Warn("Failed to close watcher after directory walk error", "error", closeErr)
			}
			cancel()
			m.current = nil
			m.cancel = nil
		}
		m.mu.Unlock()
		return fmt.Errorf("directory walk failed: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Check if watcher was replaced during walk
	if m.current != watcher {
		if closeErr := watcher.Close(); closeErr != nil {
			m.logger.Warn("Failed to close abandoned watcher", "error", closeErr)
		}
		cancel()
		return fmt.Errorf("watcher setup cancelled (replaced during walk)")
	}

	for _, dir := range dirsToWatch {
		if err := watcher.Add(dir); err != nil {
			m.logger.Warn("Cannot watch directory", "path", dir, "error", err)
		}
	}

	m.logger.Info("Watching document root", "path", rootDir, "directories", len(dirsToWatch)+1)
	go m.watchLoop(ctx, watcher)
	return nil
}

// collectDirectories returns every non-hidden directory below rootDir
func collectDirectories(rootDir string) ([]string, error) {
	var mu sync.Mutex
	var dirs []string

	err := fastwalk.Walk(&fastwalk.Config{Follow: false}, rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == rootDir || !d.IsDir() {
			return nil
		}
		if skipDir(d.Name()) {
			return fastwalk.SkipDir
		}
		mu.Lock()
		dirs = append(dirs, path)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

func (m *watcherManager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if isHidden(filepath.Base(event.Name)) {
				continue
			}

			switch {
			case event.Has(fsnotify.Create):
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDir(filepath.Base(event.Name)) {
						m.handleDirCreated(ctx, watcher, event.Name)
					}
					continue
				}
				m.emit(ctx, fsEvent{op: fsCreate, path: event.Name})
			case event.Has(fsnotify.Write):
				m.emit(ctx, fsEvent{op: fsWrite, path: event.Name})
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				// a rename shows up again as a create under the new name
				m.emit(ctx, fsEvent{op: fsRemove, path: event.Name})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("Directory watcher error", "error", err)
		}
	}
}

// handleDirCreated watches a new directory and reports its contents, which
// may have been written before the watch was in place. Parents are
// reported before their children.
func (m *watcherManager) handleDirCreated(ctx context.Context, watcher *fsnotify.Watcher, dirPath string) {
	if err := watcher.Add(dirPath); err != nil {
		m.logger.Warn("Cannot watch new directory", "path", dirPath, "error", err)
	} else {
		m.logger.Info("Now watching new directory", "path", dirPath)
	}
	m.emit(ctx, fsEvent{op: fsCreate, path: dirPath})

	var mu sync.Mutex
	var entries []string
	subdirs := map[string]bool{}
	_ = fastwalk.Walk(&fastwalk.Config{Follow: false}, dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || path == dirPath {
			return nil
		}
		if d.IsDir() && skipDir(d.Name()) {
			return fastwalk.SkipDir
		}
		if isHidden(d.Name()) {
			return nil
		}
		mu.Lock()
		entries = append(entries, path)
		if d.IsDir() {
			subdirs[path] = true
		}
		mu.Unlock()
		return nil
	})
	sort.Strings(entries)

	for _, path := range entries {
		if subdirs[path] {
			if err := watcher.Add(path); err != nil {
				m.logger.Warn("Cannot watch new directory", "path", path, "error", err)
			}
		}
		m.emit(ctx, fsEvent{op: fsCreate, path: path})
	}
}

func (m *watcherManager) emit(ctx context.Context, ev fsEvent) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

func (m *watcherManager) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
	}
	if m.current != nil {
		m.current.Close()
	}
}
