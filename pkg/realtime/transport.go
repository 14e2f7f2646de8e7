// Package realtime owns the persistent bidirectional connection to the
// remote speech/reasoning endpoint and enforces the protocol invariants the
// remote service does not enforce itself.
package realtime

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// Transport abstracts the wire so the client logic can be driven by a fake
// in tests. Writes may be called concurrently; reads are single-consumer.
type Transport interface {
	// WriteJSON marshals and sends one message frame.
	WriteJSON(v any) error

	// ReadMessage blocks until the next inbound frame.
	ReadMessage() ([]byte, error)

	// Close closes the connection.
	Close() error
}

// websocketTransport wraps a gorilla WebSocket connection.
type websocketTransport struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// DialWebSocket establishes the upstream WebSocket connection.
func DialWebSocket(ctx context.Context, url string, header http.Header) (Transport, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return &websocketTransport{conn: conn}, nil
}

// WriteJSON sends one message frame. Serialized under a lock: concurrent
// writers must not interleave a single logical frame.
func (t *websocketTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	return t.conn.WriteJSON(v)
}

// ReadMessage blocks until the next inbound frame.
func (t *websocketTransport) ReadMessage() ([]byte, error) {
	_, data, err := t.conn.ReadMessage()
	return data, err
}

// Close closes the connection.
func (t *websocketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}
