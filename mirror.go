package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxWarnings bounds the warning banners kept on the page
const maxWarnings = 5

type treeLoader interface {
	loadTree(ctx context.Context) (*Tree, error)
}

type contentFetcher interface {
	fetch(ctx context.Context, path string) (string, error)
}

type pushChannel interface {
	run(ctx context.Context, deliver func([]byte), onConnect func(reconnected bool)) error
}

// Inbox messages. Everything that touches the tree or the router goes
// through the inbox and is handled on the loop goroutine.
type (
	pushMessage     struct{ data []byte }
	snapshotMessage struct {
		tree *Tree
		err  error
	}
	navigateMessage  struct{ fragment string }
	resyncMessage    struct{}
	outlineMessage   struct{}
	connectedMessage struct{ reconnected bool }
)

// Mirror is the client session. One goroutine owns the tree, the
// synchronizer and the router; producers only post to the inbox.
type Mirror struct {
	home         string
	initialRoute string
	loader       treeLoader
	content      contentFetcher
	channel      pushChannel
	sink         pageSink
	logger       *slog.Logger

	inbox  chan any
	ctx    context.Context
	sync   *Synchronizer
	router *Router

	// loading is set while a snapshot fetch is in flight. resyncQueued asks
	// for another one once it lands, and pushes stay in pending until then.
	loading      bool
	resyncQueued bool
	snapshotted  bool
	pending      [][]byte
	warnings     []string
	status       string
	dirty        bool
}

func newMirror(home, route string, loader treeLoader, content contentFetcher, channel pushChannel, sink pageSink, logger *slog.Logger) *Mirror {
	m := &Mirror{
		home:         home,
		initialRoute: route,
		loader:       loader,
		content:      content,
		channel:      channel,
		sink:         sink,
		logger:       logger,
		inbox:        make(chan any, 64),
		ctx:          context.Background(),
	}
	m.router = newRouter(home, m, logger)
	m.sync = newSynchronizer(m, m, logger)
	return m
}

// Run loads the snapshot, opens the push channel and processes the inbox
// until ctx is cancelled. Lines read from input are fragments to navigate
// to, or the commands ":resync" and ":tree".
func (m *Mirror) Run(ctx context.Context, input io.Reader) error {
	g, ctx := errgroup.WithContext(ctx)
	m.ctx = ctx

	g.Go(func() error {
		return m.loop(ctx)
	})
	g.Go(func() error {
		err := m.channel.run(ctx, m.deliverPush, m.onConnect)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	m.post(resyncMessage{})
	m.post(navigateMessage{fragment: m.initialRoute})

	if input != nil {
		// not part of the group: a blocked stdin read must not hold up shutdown
		go m.readInput(ctx, input)
	}

	return g.Wait()
}

func (m *Mirror) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-m.inbox:
			m.handle(msg)
			m.flush()
		}
	}
}

func (m *Mirror) handle(msg any) {
	switch msg := msg.(type) {
	case pushMessage:
		if m.loading {
			// applied after the snapshot so they are not wiped by Load
			m.pending = append(m.pending, msg.data)
			return
		}
		_ = m.sync.HandleMessage(msg.data)
	case snapshotMessage:
		m.snapshotLoaded(msg)
	case navigateMessage:
		m.router.Navigate(msg.fragment)
		m.dirty = true
	case contentResult:
		if m.router.Deliver(msg) {
			m.dirty = true
		}
	case resyncMessage:
		m.startSnapshot()
	case connectedMessage:
		m.connected(msg.reconnected)
	case outlineMessage:
		m.dirty = true
	default:
		m.logger.Error("Unhandled inbox message", "type", fmt.Sprintf("%T", msg))
	}
}

func (m *Mirror) startSnapshot() {
	if m.loading {
		// the fetch in flight may predate the request
		m.resyncQueued = true
		return
	}
	m.loading = true
	ctx := m.ctx
	go func() {
		tree, err := m.loader.loadTree(ctx)
		m.post(snapshotMessage{tree: tree, err: err})
	}()
}

func (m *Mirror) snapshotLoaded(msg snapshotMessage) {
	m.loading = false
	if m.resyncQueued {
		m.resyncQueued = false
		if msg.err == nil {
			m.logger.Debug("Discarding stale navigation snapshot")
		}
		m.startSnapshot()
		return
	}
	if msg.err != nil {
		m.logger.Error("Cannot load navigation snapshot", "error", msg.err)
		m.status = fmt.Sprintf("Cannot load navigation: %v", msg.err)
	} else {
		m.status = ""
		m.sync.Load(msg.tree)
	}
	m.snapshotted = true

	pending := m.pending
	m.pending = nil
	for _, data := range pending {
		_ = m.sync.HandleMessage(data)
	}
	m.dirty = true
}

func (m *Mirror) flush() {
	if !m.dirty {
		return
	}
	m.dirty = false
	view := pageView{
		Tree:       m.sync.Tree(),
		Route:      m.router.ActiveRoute(),
		Loaded:     m.router.loaded,
		Content:    m.router.content,
		Diagnostic: m.router.diag,
		Warnings:   m.warnings,
		Status:     m.status,
	}
	if err := m.sink.publish(view); err != nil {
		m.logger.Error("Cannot publish page", "error", err)
	}
}

// post hands msg to the loop unless the session is shutting down
func (m *Mirror) post(msg any) {
	select {
	case m.inbox <- msg:
	case <-m.ctx.Done():
	}
}

func (m *Mirror) deliverPush(data []byte) {
	m.post(pushMessage{data: data})
}

func (m *Mirror) onConnect(reconnected bool) {
	m.post(connectedMessage{reconnected: reconnected})
}

// connected resyncs when events may have been missed before the
// subscription: after a reconnect, or when a snapshot was already read or
// is being read before the first handshake.
func (m *Mirror) connected(reconnected bool) {
	if !reconnected && !m.loading && !m.snapshotted {
		return
	}
	m.logger.Info("Push channel connected, resyncing navigation", "reconnected", reconnected)
	m.startSnapshot()
}

func (m *Mirror) readInput(ctx context.Context, input io.Reader) {
	scanner := bufio.NewScanner(input)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case ":resync":
			m.post(resyncMessage{})
		case ":tree":
			m.post(outlineMessage{})
		default:
			m.post(navigateMessage{fragment: line})
		}
	}
	if err := scanner.Err(); err != nil {
		m.logger.Warn("Stopped reading navigation input", "error", err)
	}
}

// requestContent runs a fetch off the loop and posts the result back
func (m *Mirror) requestContent(gen uint64, path string) {
	ctx := m.ctx
	go func() {
		body, err := m.content.fetch(ctx, path)
		m.post(contentResult{gen: gen, path: path, body: body, err: err})
	}()
}

// View implementation, backed by the router

func (m *Mirror) ActiveRoute() string { return m.router.ActiveRoute() }
func (m *Mirror) Reload(path string)  { m.router.Reload(path) }
func (m *Mirror) ResetRoute()         { m.router.ResetRoute(); m.dirty = true }
func (m *Mirror) TreeChanged()        { m.dirty = true }

// Warn shows msg as a banner on the page
func (m *Mirror) Warn(msg string) {
	m.warnings = append(m.warnings, msg)
	if len(m.warnings) > maxWarnings {
		m.warnings = m.warnings[len(m.warnings)-maxWarnings:]
	}
	m.dirty = true
}
