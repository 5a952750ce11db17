package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDocServer(t *testing.T, files map[string]string) (*docServer, *httptest.Server) {
	t.Helper()
	root := createDocTree(t, files)
	srv := newDocServer(root, DefaultHome, "/docnav", discardLogger())
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		srv.hub.closeAll()
		ts.Close()
	})
	return srv, ts
}

func get(t *testing.T, url string) (int, string, http.Header) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body), resp.Header
}

func TestServeTree(t *testing.T) {
	_, ts := newTestDocServer(t, map[string]string{
		"Home.md":         testMarkdownSimple,
		"guides/setup.md": testMarkdownSimple,
	})

	code, body, header := get(t, ts.URL+"/docnav/tree.json")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "application/json", header.Get("Content-Type"))

	var tree Tree
	require.NoError(t, json.Unmarshal([]byte(body), &tree))
	assert.Equal(t, []string{"guides", "guides/setup.md", "Home.md"}, tree.paths())
}

func TestServeContent(t *testing.T) {
	_, ts := newTestDocServer(t, map[string]string{
		"Home.md":         "# Welcome",
		"guides/setup.md": "# Setup\n\n<script>alert(1)</script>",
	})

	code, body, header := get(t, ts.URL+"/docnav/content/guides/setup.md")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, header.Get("Content-Type"), "text/html")
	assert.Contains(t, body, "Setup")
	assert.NotContains(t, body, "<script")

	code, body, _ = get(t, ts.URL+"/docnav/content/")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "Welcome")

	code, body, _ = get(t, ts.URL+"/docnav/content/missing.md")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body, "Document not found")

	code, _, _ = get(t, ts.URL+"/docnav/content/guides")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestServeMethodNotAllowed(t *testing.T) {
	_, ts := newTestDocServer(t, map[string]string{"Home.md": testMarkdownSimple})

	for _, path := range []string{"/docnav/tree.json", "/docnav/content/Home.md"} {
		resp, err := http.Post(ts.URL+path, "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode, path)
		assert.Equal(t, http.MethodGet, resp.Header.Get("Allow"))
	}
}

func TestServeMetrics(t *testing.T) {
	_, ts := newTestDocServer(t, map[string]string{"Home.md": testMarkdownSimple})
	serverBroadcastsTotal.WithLabelValues("CREATED").Add(0)

	code, body, _ := get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "docnav_server_broadcasts_total")
}

// TestWithRecovery tests panic recovery middleware
func TestWithRecovery(t *testing.T) {
	srv := newDocServer(t.TempDir(), DefaultHome, "/docnav", discardLogger())
	handler := srv.withRecovery(func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Internal server error")

	handler = srv.withRecovery(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("success"))
	})
	w = httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", w.Body.String())
}

func TestBasePathNormalized(t *testing.T) {
	assert.Equal(t, "/docnav", newDocServer(".", DefaultHome, "docnav/", discardLogger()).basePath)
	assert.Equal(t, "", newDocServer(".", DefaultHome, "/", discardLogger()).basePath)
}

func dialPush(t *testing.T, ts *httptest.Server, srv *docServer) *websocket.Conn {
	t.Helper()
	before := srv.hub.count()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/docnav/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return srv.hub.count() == before+1 }, 5*time.Second, 5*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	mt, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, mt)
	evt, err := decodeEvent(data)
	require.NoError(t, err)
	return evt
}

func TestHubBroadcast(t *testing.T) {
	srv, ts := newTestDocServer(t, map[string]string{"Home.md": testMarkdownSimple})
	a := dialPush(t, ts, srv)
	b := dialPush(t, ts, srv)

	srv.hub.broadcast(Event{Type: EventDeleted, Path: "Home.md"})

	for _, conn := range []*websocket.Conn{a, b} {
		assert.Equal(t, Event{Type: EventDeleted, Path: "Home.md"}, readEvent(t, conn))
	}

	a.Close()
	require.Eventually(t, func() bool { return srv.hub.count() == 1 }, 5*time.Second, 5*time.Millisecond)
}

func TestHubDropsSlowClient(t *testing.T) {
	h := newHub(discardLogger())
	slow := &hubClient{id: "slow", send: make(chan []byte, 1)}
	h.register(slow)

	h.broadcast(Event{Type: EventUpdated, Path: "a.md"})
	require.Equal(t, 1, h.count())

	h.broadcast(Event{Type: EventUpdated, Path: "b.md"})
	assert.Equal(t, 0, h.count(), "full buffer drops the client")

	_, ok := <-slow.send
	assert.True(t, ok, "buffered message is still readable")
	_, ok = <-slow.send
	assert.False(t, ok, "send channel is closed")

	assert.Equal(t, 0, h.unregister(slow), "unregistering twice is harmless")
}

func TestPushEventsFromFilesystem(t *testing.T) {
	srv, ts := newTestDocServer(t, map[string]string{"Home.md": testMarkdownSimple})
	translator, err := srv.startWatching()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.pumpEvents(ctx, translator)

	conn := dialPush(t, ts, srv)

	require.NoError(t, os.Mkdir(filepath.Join(srv.root, "guides"), 0755))
	evt := readEvent(t, conn)
	assert.Equal(t, EventCreated, evt.Type)
	assert.Equal(t, "guides", evt.Path)
	require.NotNil(t, evt.Node)
	assert.Equal(t, NodeDir, evt.Node.NodeType)

	createTestMarkdownFile(t, srv.root, "guides/setup.md", "# Setup")
	evt = readEvent(t, conn)
	assert.Equal(t, "guides/setup.md", evt.Path)
	assert.Contains(t, []EventType{EventCreated, EventUpdated}, evt.Type)

	require.NoError(t, os.Remove(filepath.Join(srv.root, "Home.md")))
	// skip follow-up writes of the new file
	for evt.Path == "guides/setup.md" {
		evt = readEvent(t, conn)
	}
	assert.Equal(t, Event{Type: EventDeleted, Path: "Home.md"}, evt)
}

func TestMirrorFollowsServer(t *testing.T) {
	srv, ts := newTestDocServer(t, map[string]string{"Home.md": "# Welcome"})
	translator, err := srv.startWatching()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.pumpEvents(ctx, translator)

	e := newTestEndpoints(t, ts.URL)
	sink := &recordingSink{}
	m := newMirror(DefaultHome, "",
		newSnapshotLoader(e, 5*time.Second, fastRetry(3), discardLogger()),
		newContentClient(e, 5*time.Second),
		newEventChannel(e, fastRetry(0), discardLogger()),
		sink, discardLogger())

	input, typed := io.Pipe()
	defer typed.Close()
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, input) }()

	require.Eventually(t, func() bool {
		v := sink.last()
		return len(v.paths) == 1 && strings.Contains(v.content, "Welcome")
	}, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return srv.hub.count() == 1 }, 5*time.Second, 5*time.Millisecond)

	createTestMarkdownFile(t, srv.root, "guides/setup.md", "# Setup")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"Home.md", "guides", "guides/setup.md"}, sink.last().paths)
	}, 5*time.Second, 10*time.Millisecond)

	_, err = io.WriteString(typed, "#guides/setup.md\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v := sink.last()
		return v.route == "guides/setup.md" && strings.Contains(v.content, "Setup")
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.RemoveAll(filepath.Join(srv.root, "guides")))
	require.Eventually(t, func() bool {
		v := sink.last()
		return v.route == DefaultHome && strings.Contains(v.content, "Welcome") && len(v.paths) == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("mirror did not stop")
	}
}
