package server

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvoice-ai/medvoice/pkg/reasoning"
)

type fakeIngest struct {
	mu      sync.Mutex
	audio   []byte
	commits int
	creates int
	cancels int
}

func (f *fakeIngest) SendAudio(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio = append(f.audio, pcm...)
	return nil
}

func (f *fakeIngest) CommitAudio() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commits++
	return nil
}

func (f *fakeIngest) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return nil
}

func (f *fakeIngest) CancelResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

type fakeControl struct {
	mu        sync.Mutex
	texts     []string
	muted     bool
	finalizes int
	objective int
	soap      int
}

func (f *fakeControl) DoctorMessage(_ context.Context, text string) (*reasoning.SummaryReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return &reasoning.SummaryReply{SpeechOutput: "Noted."}, nil
}

func (f *fakeControl) SetMuted(muted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = muted
}

func (f *fakeControl) Finalize(context.Context, bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finalizes++
	return nil
}

func (f *fakeControl) ObjectivePreview(context.Context) (*reasoning.ObjectiveResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objective++
	return &reasoning.ObjectiveResult{Objective: "Temp 101F"}, nil
}

func (f *fakeControl) SoapPreview(context.Context) (*reasoning.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.soap++
	return &reasoning.FinalizeResult{}, nil
}

func newTestServer(t *testing.T, cfg *Config) (*websocket.Conn, *fakeIngest, *fakeControl, func()) {
	t.Helper()

	ingest := &fakeIngest{}
	control := &fakeControl{}
	factory := func(ctx context.Context, ui *UIConn, req SessionRequest) (*Handle, error) {
		return &Handle{
			SessionID: "sess_test0000001",
			Ingest:    ingest,
			Control:   control,
			Close:     func() {},
		}, nil
	}

	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := NewBridgeServer(cfg, factory)

	ts := httptest.NewServer(s.Handler())
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Path

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	cleanup := func() {
		conn.Close()
		ts.Close()
	}
	return conn, ingest, control, cleanup
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func startSession(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":       "session.start",
		"patient_id": 101,
		"doctor_id":  "dr-1",
		"locale":     "en",
		"consent":    true,
	}))
	msg := readMessage(t, conn)
	require.Equal(t, "session.started", msg["type"])
	assert.Equal(t, "sess_test0000001", msg["session_id"])
}

func TestBridgeServer_RequiresSessionStartFirst(t *testing.T) {
	conn, _, _, cleanup := newTestServer(t, nil)
	defer cleanup()

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio.commit"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "session", msg["scope"])
}

func TestBridgeServer_AudioAppendDecodesAndForwards(t *testing.T) {
	conn, ingest, _, cleanup := newTestServer(t, nil)
	defer cleanup()
	startSession(t, conn)

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "audio.append",
		"audio": base64.StdEncoding.EncodeToString(pcm),
	}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "audio.commit"}))

	require.Eventually(t, func() bool {
		ingest.mu.Lock()
		defer ingest.mu.Unlock()
		return ingest.commits == 1
	}, time.Second, 10*time.Millisecond)

	ingest.mu.Lock()
	defer ingest.mu.Unlock()
	assert.Equal(t, pcm, ingest.audio)
}

func TestBridgeServer_ControlFrames(t *testing.T) {
	conn, ingest, control, cleanup := newTestServer(t, nil)
	defer cleanup()
	startSession(t, conn)

	frames := []map[string]any{
		{"type": "response.create"},
		{"type": "response.cancel"},
		{"type": "control.mute", "muted": true},
		{"type": "doctor.text", "text": "patient reports fever for 2 days"},
		{"type": "objective.preview"},
		{"type": "soap.preview"},
		{"type": "finalize.force"},
	}
	for _, f := range frames {
		require.NoError(t, conn.WriteJSON(f))
	}

	require.Eventually(t, func() bool {
		control.mu.Lock()
		defer control.mu.Unlock()
		return control.finalizes == 1 && control.objective == 1 && control.soap == 1 && len(control.texts) == 1
	}, 2*time.Second, 10*time.Millisecond)

	control.mu.Lock()
	assert.True(t, control.muted)
	assert.Equal(t, []string{"patient reports fever for 2 days"}, control.texts)
	control.mu.Unlock()

	ingest.mu.Lock()
	assert.Equal(t, 1, ingest.creates)
	assert.Equal(t, 1, ingest.cancels)
	ingest.mu.Unlock()
}

func TestBridgeServer_UnknownMessageType(t *testing.T) {
	conn, _, _, cleanup := newTestServer(t, nil)
	defer cleanup()
	startSession(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "video.append"}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "protocol", msg["scope"])
}

func TestBridgeServer_DuplicateSessionStartRejected(t *testing.T) {
	conn, _, _, cleanup := newTestServer(t, nil)
	defer cleanup()
	startSession(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "session.start", "patient_id": 101}))
	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
}

func TestBridgeServer_SessionTimeoutClosesConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SessionTimeout = 100 * time.Millisecond

	conn, _, _, cleanup := newTestServer(t, cfg)
	defer cleanup()
	startSession(t, conn)

	// No more frames: the server must drop the connection on its own once
	// the session times out, even with the read loop blocked.
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	start := time.Now()
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second,
		"connection must close at the session timeout, not the local read deadline")
}

func TestBridgeServer_AuthTokenEnforced(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AuthToken = "secret"

	factory := func(ctx context.Context, ui *UIConn, req SessionRequest) (*Handle, error) {
		return &Handle{SessionID: "sess_auth", Ingest: &fakeIngest{}, Control: &fakeControl{}, Close: func() {}}, nil
	}
	s := NewBridgeServer(cfg, factory)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + cfg.Path

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	header := http.Header{"Authorization": []string{"Bearer secret"}}
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
