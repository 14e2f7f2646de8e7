package server

import (
	"encoding/base64"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/medvoice-ai/medvoice/pkg/reasoning"
)

// UIConn is the typed outbound side of one browser connection. All writes
// are serialized behind a mutex; a websocket connection allows only one
// concurrent writer.
type UIConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

// NewUIConn wraps an upgraded connection.
func NewUIConn(conn *websocket.Conn) *UIConn {
	return &UIConn{conn: conn}
}

func (u *UIConn) send(payload map[string]any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if err := u.conn.WriteJSON(payload); err != nil {
		log.Printf("[UIConn] write failed: %v", err)
	}
}

// AudioDelta forwards assistant audio to the browser.
func (u *UIConn) AudioDelta(pcm []byte) {
	u.send(map[string]any{
		"type":  "response.audio.delta",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
}

// TextDelta forwards an assistant text fragment.
func (u *UIConn) TextDelta(delta string) {
	u.send(map[string]any{"type": "response.text.delta", "delta": delta})
}

// UserTranscript forwards the transcript of a spoken doctor utterance.
func (u *UIConn) UserTranscript(text string) {
	u.send(map[string]any{"type": "transcript.user", "text": text})
}

// ObservationPreview shows the updated working notes.
func (u *UIConn) ObservationPreview(sessionID, notes string) {
	u.send(map[string]any{
		"type":       "ui.observation.preview",
		"session_id": sessionID,
		"notes":      notes,
	})
}

// ObjectivePreview shows an Objective-only draft.
func (u *UIConn) ObjectivePreview(sessionID string, result *reasoning.ObjectiveResult) {
	u.send(map[string]any{
		"type":       "ui.objective.preview",
		"session_id": sessionID,
		"result":     result,
	})
}

// SoapPreview shows a SOAP draft pending approval.
func (u *UIConn) SoapPreview(sessionID string, result *reasoning.FinalizeResult) {
	u.send(map[string]any{
		"type":       "ui.soap.preview",
		"session_id": sessionID,
		"result":     result,
	})
}

// SoapResult delivers the final saved SOAP summary.
func (u *UIConn) SoapResult(sessionID string, result *reasoning.FinalizeResult) {
	u.send(map[string]any{
		"type":       "ui.soap.result",
		"session_id": sessionID,
		"result":     result,
	})
}

// Status reports a session lifecycle change.
func (u *UIConn) Status(state string) {
	u.send(map[string]any{"type": "session.status", "state": state})
}

// Error surfaces a scoped failure without tearing the connection down.
func (u *UIConn) Error(scope string, err error) {
	u.send(map[string]any{
		"type":    "error",
		"scope":   scope,
		"message": err.Error(),
	})
}

// SessionStarted acknowledges a session.start request.
func (u *UIConn) SessionStarted(sessionID string) {
	u.send(map[string]any{"type": "session.started", "session_id": sessionID})
}
