package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// snapshotLoader fetches the full tree document from tree.json
type snapshotLoader struct {
	http   *http.Client
	url    string
	retry  RetryConfig
	logger *slog.Logger
}

func newSnapshotLoader(e endpoints, timeout time.Duration, retry RetryConfig, logger *slog.Logger) *snapshotLoader {
	return &snapshotLoader{
		http:   &http.Client{Timeout: timeout},
		url:    e.tree(),
		retry:  retry,
		logger: logger,
	}
}

// loadTree fetches and decodes the snapshot, retrying transient failures
// with exponential backoff until the configured attempts run out.
func (l *snapshotLoader) loadTree(ctx context.Context) (*Tree, error) {
	notify := func(err error, next time.Duration) {
		l.logger.Warn("Snapshot fetch failed, retrying", "url", l.url, "error", err, "retry_in", next)
	}
	tree, err := backoff.Retry(ctx, func() (*Tree, error) {
		return l.fetchOnce(ctx)
	}, l.retry.retryOptions(notify)...)
	if err != nil {
		snapshotLoadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	snapshotLoadsTotal.WithLabelValues("ok").Inc()
	l.logger.Info("Loaded navigation snapshot", "url", l.url, "nodes", tree.size())
	return tree, nil
}

func (l *snapshotLoader) fetchOnce(ctx context.Context) (*Tree, error) {
	body, err := httpGet(ctx, l.http, l.url, "application/json")
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) && !fe.retryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	var tree Tree
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode snapshot from %s: %w", l.url, err))
	}
	return &tree, nil
}
