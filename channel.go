package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// controlWriteWait bounds pong and close frame writes
	controlWriteWait = 5 * time.Second
	// defaultReadTimeout must exceed the server ping interval
	defaultReadTimeout = 75 * time.Second
)

// eventChannel is the long-lived push connection. It reconnects with
// backoff whenever the connection drops, until its context is cancelled.
type eventChannel struct {
	url         string
	dialer      *websocket.Dialer
	retry       RetryConfig
	readTimeout time.Duration
	logger      *slog.Logger
}

func newEventChannel(e endpoints, retry RetryConfig, logger *slog.Logger) *eventChannel {
	return &eventChannel{
		url: e.ws(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
		retry:       retry,
		readTimeout: defaultReadTimeout,
		logger:      logger,
	}
}

// run keeps the channel open and hands every text message to deliver.
// onConnect is called after each successful handshake; reconnected is false
// only for the first one.
func (c *eventChannel) run(ctx context.Context, deliver func([]byte), onConnect func(reconnected bool)) error {
	b := c.retry.newBackOff()
	var failures uint
	connectedBefore := false

	for {
		conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
		if err == nil {
			b.Reset()
			failures = 0
			c.logger.Info("Push channel connected", "url", c.url, "reconnect", connectedBefore)
			onConnect(connectedBefore)
			connectedBefore = true

			err = c.readLoop(ctx, conn, deliver)
			conn.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		if c.retry.MaxTries > 0 && failures >= c.retry.MaxTries {
			return fmt.Errorf("push channel %s: giving up after %d attempts: %w", c.url, failures, err)
		}
		wait := b.NextBackOff()
		c.logger.Warn("Push channel unavailable, reconnecting", "url", c.url, "error", err, "retry_in", wait)
		channelReconnectsTotal.Inc()
		if !sleepContext(ctx, wait) {
			return ctx.Err()
		}
	}
}

// readLoop reads until the connection fails or ctx is cancelled
func (c *eventChannel) readLoop(ctx context.Context, conn *websocket.Conn, deliver func([]byte)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(controlWriteWait))
			conn.Close()
		case <-done:
		}
	}()

	extend := func() error {
		return conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	if err := extend(); err != nil {
		return err
	}
	conn.SetPongHandler(func(string) error { return extend() })
	conn.SetPingHandler(func(appData string) error {
		if err := extend(); err != nil {
			return err
		}
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(controlWriteWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if err := extend(); err != nil {
			return err
		}
		if mt != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text push message", "message_type", mt)
			continue
		}
		deliver(data)
	}
}

// sleepContext waits for d, returning false if ctx ends first
func sleepContext(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
