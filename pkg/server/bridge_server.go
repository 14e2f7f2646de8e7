// Package server exposes the visit assistant to a browser over a WebSocket
// control channel: audio and control frames in, typed preview and transcript
// events out.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/medvoice-ai/medvoice/pkg/reasoning"
)

// AudioIngest is the audio/control slice of the streaming client driven by
// browser frames.
type AudioIngest interface {
	SendAudio(pcm []byte) error
	CommitAudio() error
	CreateResponse() error
	CancelResponse() error
}

// SessionControl is the orchestrator surface driven by browser frames.
// Preview results also flow to the UIConn, so callers here may discard them.
type SessionControl interface {
	DoctorMessage(ctx context.Context, text string) (*reasoning.SummaryReply, error)
	SetMuted(muted bool)
	Finalize(ctx context.Context, forced bool) error
	ObjectivePreview(ctx context.Context) (*reasoning.ObjectiveResult, error)
	SoapPreview(ctx context.Context) (*reasoning.FinalizeResult, error)
}

// Handle is one assembled per-connection assistant stack.
type Handle struct {
	SessionID string
	Ingest    AudioIngest
	Control   SessionControl
	Close     func()
}

// SessionRequest carries the session.start parameters.
type SessionRequest struct {
	PatientID int
	DoctorID  string
	Locale    string
	Consent   bool
}

// Factory assembles the assistant stack for one browser connection. The
// UIConn is the sink every component reports into.
type Factory func(ctx context.Context, ui *UIConn, req SessionRequest) (*Handle, error)

// Config holds the bridge server configuration.
type Config struct {
	// Addr is the address to listen on (e.g., ":8080").
	Addr string

	// Path is the WebSocket endpoint path.
	Path string

	// AuthToken is the bearer token for authentication.
	// If empty, authentication is disabled.
	AuthToken string

	// MaxSessionsPerIP limits connections per IP address. 0 means no limit.
	MaxSessionsPerIP int

	// SessionTimeout is the maximum connection duration. 0 means no timeout.
	SessionTimeout time.Duration

	// ReadBufferSize is the WebSocket read buffer size.
	ReadBufferSize int

	// WriteBufferSize is the WebSocket write buffer size.
	WriteBufferSize int
}

// DefaultConfig returns the default bridge configuration.
func DefaultConfig() *Config {
	return &Config{
		Addr:             ":8080",
		Path:             "/v1/visit",
		MaxSessionsPerIP: 4,
		SessionTimeout:   60 * time.Minute,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
}

// BridgeServer is the browser-facing WebSocket server.
type BridgeServer struct {
	config  *Config
	factory Factory

	// IP-based connection counting
	ipConns   map[string]int
	ipConnsMu sync.Mutex

	httpServer *http.Server
	mux        *http.ServeMux
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridgeServer creates a bridge server.
func NewBridgeServer(config *Config, factory Factory) *BridgeServer {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &BridgeServer{
		config:  config,
		factory: factory,
		ipConns: make(map[string]int),
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins; customize for production
			},
		},
		ctx:    ctx,
		cancel: cancel,
	}
	s.mux.HandleFunc(config.Path, s.handleWebSocket)
	return s
}

// Handler returns the server's HTTP handler, used by tests.
func (s *BridgeServer) Handler() http.Handler {
	return s.mux
}

// RegisterHandler registers an extra HTTP handler. Must be called before
// Start().
func (s *BridgeServer) RegisterHandler(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Start starts the server.
func (s *BridgeServer) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.config.Addr,
		Handler: s.mux,
	}

	log.Printf("[BridgeServer] starting on %s%s", s.config.Addr, s.config.Path)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop stops the server gracefully.
func (s *BridgeServer) Stop(ctx context.Context) error {
	s.cancel()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleWebSocket upgrades a browser connection and serves it.
func (s *BridgeServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.AuthToken != "" {
		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") ||
			strings.TrimPrefix(authHeader, "Bearer ") != s.config.AuthToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	clientIP := getClientIP(r)
	if s.config.MaxSessionsPerIP > 0 {
		s.ipConnsMu.Lock()
		count := s.ipConns[clientIP]
		s.ipConnsMu.Unlock()
		if count >= s.config.MaxSessionsPerIP {
			http.Error(w, "Too many sessions from this IP", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[BridgeServer] WebSocket upgrade failed: %v", err)
		return
	}

	s.trackIP(clientIP, 1)
	defer s.trackIP(clientIP, -1)

	ctx := s.ctx
	if s.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SessionTimeout)
		defer cancel()
	}

	log.Printf("[BridgeServer] connection from %s", clientIP)
	s.serveConn(ctx, conn)
}

// serveConn runs the per-connection read loop. The first frame must be
// session.start; everything else requires an assembled stack.
func (s *BridgeServer) serveConn(ctx context.Context, conn *websocket.Conn) {
	ui := NewUIConn(conn)

	var handle *Handle
	var ops sync.WaitGroup
	defer func() {
		ops.Wait()
		if handle != nil {
			handle.Close()
		}
		conn.Close()
	}()

	// ReadMessage blocks; closing the conn when the session context expires
	// (timeout or server shutdown) is what unblocks it.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			log.Printf("[BridgeServer] session context done: %v", ctx.Err())
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("[BridgeServer] read error: %v", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			ui.Error("protocol", fmt.Errorf("malformed message: %w", err))
			continue
		}

		if msg.Type == msgSessionStart {
			if handle != nil {
				ui.Error("session", fmt.Errorf("session already started"))
				continue
			}
			h, err := s.factory(ctx, ui, SessionRequest{
				PatientID: msg.PatientID,
				DoctorID:  msg.DoctorID,
				Locale:    msg.Locale,
				Consent:   msg.Consent,
			})
			if err != nil {
				ui.Error("session", err)
				continue
			}
			handle = h
			ui.SessionStarted(handle.SessionID)
			continue
		}

		if handle == nil {
			ui.Error("session", fmt.Errorf("no session; send %s first", msgSessionStart))
			continue
		}

		if done := s.dispatch(ctx, ui, handle, &ops, &msg); done {
			return
		}
	}
}

// dispatch handles one post-start frame. It returns true when the
// connection should close.
func (s *BridgeServer) dispatch(ctx context.Context, ui *UIConn, handle *Handle, ops *sync.WaitGroup, msg *clientMessage) bool {
	switch msg.Type {
	case msgAudioAppend:
		pcm, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			ui.Error("audio", fmt.Errorf("bad audio payload: %w", err))
			return false
		}
		if err := handle.Ingest.SendAudio(pcm); err != nil {
			ui.Error("audio", err)
		}

	case msgAudioCommit:
		if err := handle.Ingest.CommitAudio(); err != nil {
			ui.Error("audio", err)
		}

	case msgResponseCreate:
		if err := handle.Ingest.CreateResponse(); err != nil {
			ui.Error("response", err)
		}

	case msgResponseCancel:
		if err := handle.Ingest.CancelResponse(); err != nil {
			ui.Error("response", err)
		}

	case msgControlMute:
		handle.Control.SetMuted(msg.Muted)

	// Doctor text, previews and finalize all do reasoning I/O; run them off
	// the read loop so control frames keep flowing.
	case msgDoctorText:
		text := msg.Text
		ops.Add(1)
		go func() {
			defer ops.Done()
			if _, err := handle.Control.DoctorMessage(ctx, text); err != nil {
				ui.Error("turn", err)
			}
		}()

	case msgObjectivePreview:
		ops.Add(1)
		go func() {
			defer ops.Done()
			handle.Control.ObjectivePreview(ctx)
		}()

	case msgSoapPreview:
		ops.Add(1)
		go func() {
			defer ops.Done()
			handle.Control.SoapPreview(ctx)
		}()

	case msgFinalizeForce:
		ops.Add(1)
		go func() {
			defer ops.Done()
			handle.Control.Finalize(ctx, true)
		}()

	case msgControlStop:
		log.Printf("[BridgeServer] stop requested")
		return true

	default:
		ui.Error("protocol", fmt.Errorf("unknown message type %q", msg.Type))
	}
	return false
}

func (s *BridgeServer) trackIP(clientIP string, delta int) {
	s.ipConnsMu.Lock()
	s.ipConns[clientIP] += delta
	if s.ipConns[clientIP] <= 0 {
		delete(s.ipConns, clientIP)
	}
	s.ipConnsMu.Unlock()
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return strings.Split(r.RemoteAddr, ":")[0]
}
