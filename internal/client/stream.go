package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// ProgressEvent is one batch progress notification from the stream.
type ProgressEvent struct {
	BatchID string        `json:"batch_id"`
	Type    string        `json:"type"`
	State   BatchProgress `json:"state"`
	Error   string        `json:"error,omitempty"`
	At      time.Time     `json:"at"`
}

// Terminal event types closing a per-batch stream.
const (
	EventBatchCompleted = "batch_completed"
	EventBatchSuspended = "batch_suspended"
)

// StreamEvents opens a ticket-gated websocket and invokes onEvent for each
// progress event. The ticket is consumed by the server on connect; a second
// call needs a fresh one. When batchID is non-empty only that batch's events
// are delivered, and the stream ends after its terminal event.
// Return an error from onEvent to abort.
func (c *Client) StreamEvents(
	ctx context.Context,
	ticket string,
	batchID string,
	onEvent func(ev ProgressEvent) error,
) error {
	wsEndpoint := c.endpoint
	wsEndpoint = strings.Replace(wsEndpoint, "http://", "ws://", 1)
	wsEndpoint = strings.Replace(wsEndpoint, "https://", "wss://", 1)

	u, err := url.Parse(wsEndpoint + "/stream")
	if err != nil {
		return fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("ticket", ticket)
	if batchID != "" {
		q.Set("batch", batchID)
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket connect: %w", err)
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("stream closed: %s", closeErr.Text)
			}
			return fmt.Errorf("read event: %w", err)
		}

		if err := onEvent(ev); err != nil {
			return err
		}

		if batchID != "" && ev.BatchID == batchID &&
			(ev.Type == EventBatchCompleted || ev.Type == EventBatchSuspended) {
			return nil
		}
	}
}
