package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// docServer serves the navigation tree, rendered documents and the push
// channel for one document root
type docServer struct {
	root     string
	home     string
	basePath string
	renderer *markdownRenderer
	hub      *hub
	watcher  *watcherManager
	logger   *slog.Logger
}

func newDocServer(root, home, basePath string, logger *slog.Logger) *docServer {
	basePath = "/" + strings.Trim(basePath, "/")
	if basePath == "/" {
		basePath = ""
	}
	return &docServer{
		root:     root,
		home:     home,
		basePath: basePath,
		renderer: newMarkdownRenderer(),
		hub:      newHub(logger),
		watcher:  newWatcherManager(logger),
		logger:   logger,
	}
}

func (s *docServer) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(s.basePath+"/tree.json", s.withRecovery(getOnly(s.serveTree)))
	mux.HandleFunc(s.basePath+"/content/", s.withRecovery(getOnly(s.serveContent)))
	mux.HandleFunc(s.basePath+"/ws", s.withRecovery(getOnly(s.hub.serveWS)))
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *docServer) withRecovery(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("Panic in handler", "path", r.URL.Path, "panic", err, "stack", string(debug.Stack()))
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next(w, r)
	}
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *docServer) serveTree(w http.ResponseWriter, r *http.Request) {
	tree, err := readTree(s.root, s.logger)
	if err != nil {
		s.logger.Error("Cannot read document tree", "path", s.root, "error", err)
		http.Error(w, "Cannot read document tree", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(tree); err != nil {
		s.logger.Warn("Error writing tree response", "error", err)
	}
}

func (s *docServer) serveContent(w http.ResponseWriter, r *http.Request) {
	relPath := strings.TrimPrefix(r.URL.Path, s.basePath+"/content")
	body, err := s.renderer.renderDocument(s.root, relPath, s.home)
	switch {
	case errors.Is(err, ErrOutsideRoot), errors.Is(err, ErrNotDocument):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, fs.ErrNotExist):
		http.Error(w, "Document not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("Cannot render document", "path", relPath, "error", err)
		http.Error(w, "Cannot render document", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if _, err := w.Write(body); err != nil {
		s.logger.Debug("Error writing content response", "path", relPath, "error", err)
	}
}

// startWatching starts the recursive watcher, then seeds the translator
// with a tree read after it. Nothing is missed between the two; a document
// created in that window is already in the seed, so its queued create goes
// out as UPDATED.
func (s *docServer) startWatching() (*updateTranslator, error) {
	translator, err := newUpdateTranslator(s.root, s.logger)
	if err != nil {
		return nil, err
	}
	if err := s.watcher.watchDirectory(translator.root); err != nil {
		return nil, err
	}
	tree, err := readTree(s.root, s.logger)
	if err != nil {
		s.watcher.close()
		return nil, err
	}
	translator.seed(tree)
	return translator, nil
}

// pumpEvents broadcasts tree changes until ctx ends
func (s *docServer) pumpEvents(ctx context.Context, translator *updateTranslator) {
	defer s.watcher.close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.watcher.Events():
			for _, evt := range translator.translate(ev) {
				s.hub.broadcast(evt)
			}
		}
	}
}

// run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *docServer) run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	translator, err := s.startWatching()
	if err != nil {
		return fmt.Errorf("watch document root: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.pumpEvents(ctx, translator)
		return nil
	})
	g.Go(func() error {
		s.logger.Info("Serving documents", "root", s.root, "addr", addr, "base_path", s.basePath)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("Shutting down gracefully", "connections", s.hub.count())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not closed by Shutdown
		s.hub.closeAll()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Server shutdown error", "error", err)
		}
		return nil
	})
	return g.Wait()
}
