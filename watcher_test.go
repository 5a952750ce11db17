package main

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectDirectories(t *testing.T) {
	root := createDocTree(t, map[string]string{
		"a/b/c.md":      testMarkdownSimple,
		"z/":            "",
		".git/objects/": "",
		"vendor/x/":     "",
		"docs/Home.md":  testMarkdownSimple,
	})

	dirs, err := collectDirectories(root)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a"),
		filepath.Join(root, "a", "b"),
		filepath.Join(root, "docs"),
		filepath.Join(root, "z"),
	}, dirs)
}

// TestWatcherManagerConcurrency tests concurrent watcher operations
func TestWatcherManagerConcurrency(t *testing.T) {
	root := createDocTree(t, map[string]string{"test.md": testMarkdownSimple})
	wm := newWatcherManager(discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// replaced setups report an error, which is expected here
			_ = wm.watchDirectory(root)
		}()
	}
	wg.Wait()

	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wm.close()
		}()
	}
	wg.Wait()
}

func TestWatchDirectoryMissingRoot(t *testing.T) {
	wm := newWatcherManager(discardLogger())
	err := wm.watchDirectory(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	wm.close()
}

func nextFsEvent(t *testing.T, wm *watcherManager) fsEvent {
	t.Helper()
	select {
	case ev := <-wm.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("no filesystem event")
		return fsEvent{}
	}
}

func TestWatcherReportsNewDirectoryContents(t *testing.T) {
	root := createDocTree(t, map[string]string{"Home.md": testMarkdownSimple})
	wm := newWatcherManager(discardLogger())
	require.NoError(t, wm.watchDirectory(root))
	defer wm.close()

	// built elsewhere and moved in, so the watcher never sees the inner creates
	staging := createDocTree(t, map[string]string{"guides/setup.md": testMarkdownSimple})
	require.NoError(t, os.Rename(filepath.Join(staging, "guides"), filepath.Join(root, "guides")))

	ev := nextFsEvent(t, wm)
	assert.Equal(t, fsEvent{op: fsCreate, path: filepath.Join(root, "guides")}, ev)
	ev = nextFsEvent(t, wm)
	assert.Equal(t, fsEvent{op: fsCreate, path: filepath.Join(root, "guides", "setup.md")}, ev)

	// the new directory is watched too
	require.NoError(t, os.Remove(filepath.Join(root, "guides", "setup.md")))
	ev = nextFsEvent(t, wm)
	assert.Equal(t, fsEvent{op: fsRemove, path: filepath.Join(root, "guides", "setup.md")}, ev)
}

func TestFsOpString(t *testing.T) {
	assert.Equal(t, "create", fsCreate.String())
	assert.Equal(t, "write", fsWrite.String())
	assert.Equal(t, "remove", fsRemove.String())
	assert.Equal(t, "unknown", fsOp(0).String())
}
