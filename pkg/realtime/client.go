package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/medvoice-ai/medvoice/pkg/realtime/events"
	"github.com/medvoice-ai/medvoice/pkg/realtime/state"
)

const (
	DefaultBaseURL     = "wss://api.openai.com/v1/realtime"
	DefaultModel       = "gpt-4o-realtime-preview"
	DefaultDialTimeout = 15 * time.Second
)

// Errors for client operations.
var (
	ErrNotConnected = errors.New("client not connected")
	ErrClosed       = errors.New("client closed")
)

// ClientConfig holds the configuration for the streaming session client.
type ClientConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// Session is pushed via session.update right after connecting.
	Session events.SessionConfig

	// AutoCreateOnSilence requests a response when server VAD reports end
	// of user speech. Off when the orchestrator owns turn decisions.
	AutoCreateOnSilence bool

	// DialTimeout bounds the connect; a session that never yields
	// session.created is abandoned when it expires.
	DialTimeout time.Duration
}

// DefaultSessionConfig returns the session parameters pushed on connect.
func DefaultSessionConfig(instructions string, tools []events.Tool) events.SessionConfig {
	return events.SessionConfig{
		Modalities:        []events.Modality{events.ModalityText, events.ModalityAudio},
		Voice:             "verse",
		Instructions:      instructions,
		InputAudioFormat:  events.AudioFormatPCM16,
		OutputAudioFormat: events.AudioFormatPCM16,
		InputAudioTranscription: &events.TranscriptionConfig{
			Model: "whisper-1",
		},
		TurnDetection: &events.TurnDetection{
			Type:              events.TurnDetectionTypeServerVAD,
			Threshold:         0.85,
			PrefixPaddingMs:   300,
			SilenceDurationMs: 1200,
		},
		Tools:           tools,
		ToolChoice:      "auto",
		Temperature:     0.6,
		MaxOutputTokens: "inf",
	}
}

// Client manages the single persistent connection to the remote endpoint:
// connection lifecycle, serialized outbound control messages, inbound event
// dispatch, and the single-active-response state machine.
type Client struct {
	cfg     ClientConfig
	sink    EventSink
	tracker *state.ResponseTracker

	mu        sync.Mutex
	transport Transport
	connected bool
	closed    bool

	sendChan chan events.ClientEvent
	closedCh chan struct{}
	wg       sync.WaitGroup
}

// NewClient creates a client. A nil sink discards events.
func NewClient(cfg ClientConfig, sink EventSink) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if sink == nil {
		sink = NoOpEventSink{}
	}
	return &Client{
		cfg:      cfg,
		sink:     sink,
		tracker:  state.NewResponseTracker(),
		sendChan: make(chan events.ClientEvent, 100),
		closedCh: make(chan struct{}),
	}
}

// NewClientWithTransport creates a connected client over an existing
// transport and starts its loops. Used by tests and alternative dialers.
func NewClientWithTransport(cfg ClientConfig, sink EventSink, t Transport) *Client {
	c := NewClient(cfg, sink)
	c.start(t)
	return c
}

// Connect dials the endpoint, pushes the initial session configuration, and
// begins the listen loop. Connection failures are returned and also surfaced
// through the error hook, since Connect usually runs in a background task.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.DialTimeout)
	defer cancel()

	url := fmt.Sprintf("%s?model=%s", c.cfg.BaseURL, c.cfg.Model)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	transport, err := DialWebSocket(dialCtx, url, header)
	if err != nil {
		c.sink.OnError(err)
		return err
	}

	c.start(transport)
	return nil
}

func (c *Client) start(t Transport) {
	c.mu.Lock()
	c.transport = t
	c.connected = true
	c.mu.Unlock()

	c.wg.Add(2)
	go c.writeLoop()
	go c.readLoop()

	c.queue(events.NewSessionUpdateEvent(c.cfg.Session))
}

// Connected reports whether the connection is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// ResponseInFlight reports whether a response is outstanding.
func (c *Client) ResponseInFlight() bool {
	return c.tracker.InFlight()
}

// ResponseState returns a copy of the response-tracker fields.
func (c *Client) ResponseState() state.Snapshot {
	return c.tracker.GetSnapshot()
}

// SendAudio base64-encodes a PCM chunk and appends it to the input buffer.
func (c *Client) SendAudio(pcm []byte) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(events.NewInputAudioBufferAppendEvent(
		base64.StdEncoding.EncodeToString(pcm)))
}

// CommitAudio signals end-of-utterance on the input buffer.
func (c *Client) CommitAudio() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(events.NewInputAudioBufferCommitEvent())
}

// CreateResponse requests a response, guarded by the single-active-response
// invariant. A call while one is outstanding is a silent no-op: the remote
// would reject it anyway, and local suppression avoids the race window.
func (c *Client) CreateResponse() error {
	return c.createResponse(nil)
}

// CreateResponseWithInstructions requests a response with one-off
// instructions and modalities, under the same guard.
func (c *Client) CreateResponseWithInstructions(instructions string, modalities []events.Modality) error {
	return c.createResponse(&events.ResponseConfig{
		Instructions: instructions,
		Modalities:   modalities,
	})
}

func (c *Client) createResponse(cfg *events.ResponseConfig) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	if err := c.tracker.BeginCreate(); err != nil {
		log.Printf("[RealtimeClient] response already in flight, create suppressed")
		return nil
	}
	if err := c.queue(events.NewResponseCreateEvent(cfg)); err != nil {
		c.tracker.AbortCreate()
		return err
	}
	return nil
}

// CancelResponse requests cancellation of the active response. Fire and
// forget: local state is cleared only when the remote confirms via a
// terminal lifecycle event, never optimistically here.
func (c *Client) CancelResponse() error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(events.NewResponseCancelEvent(c.tracker.ActiveResponseID()))
}

// CreateSystemMessage pins a system-role text item into the conversation.
func (c *Client) CreateSystemMessage(text string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(events.NewSystemMessageEvent(text))
}

// SendFunctionOutput answers a tool call with its structured result.
func (c *Client) SendFunctionOutput(callID, output string) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(events.NewFunctionCallOutputEvent(callID, output))
}

// UpdateSession pushes new session parameters.
func (c *Client) UpdateSession(cfg events.SessionConfig) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(events.NewSessionUpdateEvent(cfg))
}

// SendEvent queues an arbitrary client event.
func (c *Client) SendEvent(event events.ClientEvent) error {
	if !c.Connected() {
		return ErrNotConnected
	}
	return c.queue(event)
}

func (c *Client) queue(event events.ClientEvent) error {
	select {
	case c.sendChan <- event:
		return nil
	case <-c.closedCh:
		return ErrClosed
	}
}

// Disconnect closes the connection. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	transport := c.transport
	c.mu.Unlock()

	close(c.closedCh)
	if transport != nil {
		transport.Close()
	}
	c.wg.Wait()
	return nil
}

// writeLoop serializes all outbound messages through the single send path.
func (c *Client) writeLoop() {
	defer c.wg.Done()

	for {
		select {
		case event := <-c.sendChan:
			c.mu.Lock()
			transport := c.transport
			c.mu.Unlock()
			if transport == nil {
				return
			}
			if err := transport.WriteJSON(event); err != nil {
				log.Printf("[RealtimeClient] send %s failed: %v", event.ClientEventType(), err)
				c.sink.OnError(fmt.Errorf("send %s: %w", event.ClientEventType(), err))
			}
		case <-c.closedCh:
			return
		}
	}
}

// readLoop processes inbound events strictly in arrival order.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		c.mu.Lock()
		transport := c.transport
		c.mu.Unlock()
		if transport == nil {
			return
		}

		data, err := transport.ReadMessage()
		if err != nil {
			c.mu.Lock()
			wasClosed := c.closed
			c.connected = false
			c.mu.Unlock()
			if !wasClosed {
				log.Printf("[RealtimeClient] read error: %v", err)
				c.sink.OnError(fmt.Errorf("connection lost: %w", err))
			}
			return
		}

		event, err := events.ParseServerEvent(data)
		if err != nil {
			log.Printf("[RealtimeClient] parse error: %v", err)
			continue
		}
		c.dispatch(event)
	}
}

// dispatch is the inbound state machine. Every handler reconciles rather
// than asserts: the remote is authoritative and ordinary races must not
// crash the session.
func (c *Client) dispatch(event events.ServerEvent) {
	switch e := event.(type) {
	case *events.SessionCreatedEvent:
		log.Printf("[RealtimeClient] session created")
		c.sink.OnSessionReady()

	case *events.SessionUpdatedEvent:
		log.Printf("[RealtimeClient] session updated")

	case *events.InputAudioBufferSpeechStartedEvent:
		c.sink.OnSpeechStarted()

	case *events.InputAudioBufferSpeechStoppedEvent:
		c.sink.OnSpeechStopped()
		if c.cfg.AutoCreateOnSilence {
			c.CreateResponse()
		}

	case *events.ResponseCreatedEvent:
		c.tracker.MarkCreated(e.Response.ID)
		c.sink.OnResponseStarted(e.Response.ID)

	case *events.ResponseFinishedEvent:
		c.tracker.Clear()
		c.sink.OnResponseFinished(e.Response.ID, finishStatus(e))

	case *events.ResponseAudioDeltaEvent:
		pcm, err := base64.StdEncoding.DecodeString(e.Delta)
		if err != nil {
			log.Printf("[RealtimeClient] bad audio delta: %v", err)
			return
		}
		c.sink.OnAudioDelta(pcm)

	case *events.ResponseTextDeltaEvent:
		c.sink.OnTextDelta(e.Delta)

	case *events.ResponseAudioTranscriptDeltaEvent:
		// The spoken transcript doubles as the assistant's text stream.
		c.sink.OnTextDelta(e.Delta)

	case *events.InputAudioTranscriptionCompletedEvent:
		if strings.TrimSpace(e.Transcript) != "" {
			c.sink.OnUserTranscript(e.Transcript)
		}

	case *events.InputAudioTranscriptionFailedEvent:
		log.Printf("[RealtimeClient] transcription failed: %s", e.Error.Message)

	case *events.ResponseFunctionCallArgumentsDeltaEvent:
		callID, name, delta := e.Call()
		c.sink.OnToolCallDelta(callID, name, delta)

	case *events.ResponseFunctionCallArgumentsDoneEvent:
		callID, name, arguments := e.Call()
		c.sink.OnToolCallDone(callID, name, arguments)

	case *events.ErrorEvent:
		c.handleRemoteError(e)

	default:
		log.Printf("[RealtimeClient] ignoring event type %s", event.ServerEventType())
	}
}

func finishStatus(e *events.ResponseFinishedEvent) events.ResponseStatus {
	if e.Response.Status != "" {
		return e.Response.Status
	}
	switch e.Type {
	case events.ServerEventTypeResponseCancelled:
		return events.ResponseStatusCancelled
	case events.ServerEventTypeResponseFailed:
		return events.ResponseStatusFailed
	default:
		return events.ResponseStatusCompleted
	}
}

// handleRemoteError reconciles protocol races and surfaces the rest.
func (c *Client) handleRemoteError(e *events.ErrorEvent) {
	msg := strings.ToLower(e.Error.Message)

	switch {
	case strings.Contains(msg, "no active response found"):
		// The cancel arrived after the response already finished. Benign
		// race: clear local state, no user-visible error.
		log.Printf("[RealtimeClient] stale cancel reconciled")
		c.tracker.Clear()

	case strings.Contains(msg, "active response in progress"):
		// The remote is confirming a response exists that local state lost
		// track of. Resynchronize instead of surfacing a failure.
		log.Printf("[RealtimeClient] remote reports active response, reconciling")
		c.tracker.ReconcileActive()

	default:
		c.sink.OnError(fmt.Errorf("remote error: %s (%s)", e.Error.Message, e.Error.Type))
	}
}
