// Package tools converts remote tool-call events into local handler
// invocations. Argument deltas are accumulated per call id; completed calls
// are dispatched concurrently so the event relay never waits on a handler,
// and every call is answered with exactly one function-call output.
package tools

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"sync"

	"github.com/medvoice-ai/medvoice/pkg/realtime/events"
	"github.com/medvoice-ai/medvoice/pkg/reasoning"
	"github.com/medvoice-ai/medvoice/pkg/session"
	"github.com/medvoice-ai/medvoice/pkg/trace"
)

const (
	ToolSaveObservation = "save_observation"
	ToolFinalizeSoap    = "finalize_soap"
)

// Upstream sends results and follow-up requests back over the stream.
type Upstream interface {
	SendFunctionOutput(callID, output string) error
	CreateResponseWithInstructions(instructions string, modalities []events.Modality) error
}

// Notifier receives derived preview events for the operator surface.
type Notifier interface {
	ObservationPreview(sessionID, notes string)
	SoapPreview(sessionID string, result *reasoning.FinalizeResult)
	Error(scope string, err error)
}

// SoapDrafter produces the SOAP preview for the finalize tool.
type SoapDrafter interface {
	GenerateSummaryFinalize(ctx context.Context, turns []session.Turn, snapshot map[string]any, locale string, previewOnly bool) (*reasoning.FinalizeResult, error)
}

// Bridge dispatches tool calls for one visit session.
type Bridge struct {
	sess     *session.Session
	upstream Upstream
	drafter  SoapDrafter
	notify   Notifier

	mu   sync.Mutex
	bufs map[string]*callBuffer

	wg sync.WaitGroup
}

type callBuffer struct {
	name string
	args strings.Builder
}

// NewBridge creates a bridge bound to one session.
func NewBridge(sess *session.Session, upstream Upstream, drafter SoapDrafter, notify Notifier) *Bridge {
	return &Bridge{
		sess:     sess,
		upstream: upstream,
		drafter:  drafter,
		notify:   notify,
		bufs:     make(map[string]*callBuffer),
	}
}

// HandleDelta appends an argument fragment to the call's buffer.
func (b *Bridge) HandleDelta(callID, name, delta string) {
	if callID == "" {
		return
	}
	b.mu.Lock()
	buf, ok := b.bufs[callID]
	if !ok {
		buf = &callBuffer{}
		b.bufs[callID] = buf
	}
	if name != "" {
		buf.name = name
	}
	buf.args.WriteString(delta)
	b.mu.Unlock()
}

// HandleDone closes the argument stream and dispatches the handler on its
// own goroutine. The done event's full arguments win over the accumulated
// buffer when both are present.
func (b *Bridge) HandleDone(callID, name, arguments string) {
	b.mu.Lock()
	buf := b.bufs[callID]
	delete(b.bufs, callID)
	b.mu.Unlock()

	if buf != nil {
		if name == "" {
			name = buf.name
		}
		if arguments == "" {
			arguments = buf.args.String()
		}
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.dispatch(callID, name, arguments)
	}()
}

// Close waits for in-flight handlers to finish.
func (b *Bridge) Close() error {
	b.wg.Wait()
	return nil
}

func (b *Bridge) dispatch(callID, name, arguments string) {
	ctx, span := trace.InstrumentToolCall(context.Background(), name, callID)
	defer span.End()

	args := parseArgs(arguments)
	sessionID := b.resolveSessionID(args)
	log.Printf("[Tools] dispatch %s call=%s", name, callID)

	var result any
	switch name {
	case ToolSaveObservation:
		result = b.saveObservation(sessionID, args)
	case ToolFinalizeSoap:
		result = b.finalizeSoap(ctx, sessionID, args)
	default:
		log.Printf("[Tools] unknown tool %q", name)
		result = UnknownToolResult{Status: "error", Tool: name, Error: "unknown tool"}
	}

	output, err := json.Marshal(result)
	if err != nil {
		output = []byte(`{"status":"error","error":"result encoding failed"}`)
	}
	if err := b.upstream.SendFunctionOutput(callID, string(output)); err != nil {
		b.notify.Error("tools", err)
	}
}

func (b *Bridge) saveObservation(sessionID string, args map[string]any) any {
	notes := session.CoerceNotes(args["notes"])
	if strings.TrimSpace(notes) == "" {
		return SaveObservationResult{Status: "error", SessionID: sessionID, Error: "empty notes"}
	}

	b.sess.AppendNotes(notes)
	b.notify.ObservationPreview(sessionID, b.sess.Notes())

	// Tiny spoken acknowledgement so the doctor hears the save landed.
	if err := b.upstream.CreateResponseWithInstructions(
		"Confirm in one short sentence that the observation was noted.",
		[]events.Modality{events.ModalityAudio, events.ModalityText},
	); err != nil {
		log.Printf("[Tools] ack response: %v", err)
	}

	return SaveObservationResult{Status: "saved", SessionID: sessionID, Notes: notes}
}

func (b *Bridge) finalizeSoap(ctx context.Context, sessionID string, args map[string]any) any {
	if extra := session.CoerceNotes(args["notes"]); strings.TrimSpace(extra) != "" {
		b.sess.AppendNotes(extra)
	}

	result, err := b.drafter.GenerateSummaryFinalize(ctx, b.sess.Turns(), b.sess.Snapshot(), b.sess.Locale, true)
	if err != nil {
		b.notify.Error("soap_draft", err)
		return FinalizeSoapResult{Status: "error", SessionID: sessionID, Error: err.Error()}
	}

	b.notify.SoapPreview(sessionID, result)
	return FinalizeSoapResult{
		Status:       "drafted",
		SessionID:    sessionID,
		Soap:         result.Soap,
		SpeechOutput: result.SpeechOutput,
	}
}

// resolveSessionID returns the bound session id, overriding missing or
// placeholder values the model sometimes echoes back.
func (b *Bridge) resolveSessionID(args map[string]any) string {
	if v, ok := args["session_id"].(string); ok {
		v = strings.TrimSpace(v)
		if strings.HasPrefix(v, "sess_") && v == b.sess.ID {
			return v
		}
	}
	args["session_id"] = b.sess.ID
	return b.sess.ID
}

// parseArgs parses tool arguments defensively: malformed JSON yields an
// empty object so the handler can still answer with a structured failure.
func parseArgs(raw string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil || args == nil {
		if strings.TrimSpace(raw) != "" {
			log.Printf("[Tools] malformed tool arguments: %.80s", raw)
		}
		return map[string]any{}
	}
	return args
}

// Defs returns the tool definitions advertised in the session config.
func Defs() []events.Tool {
	return []events.Tool{
		{
			Type:        "function",
			Name:        ToolSaveObservation,
			Description: "Save a clinical observation into the visit's working notes.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": map[string]any{"type": "string"},
					"notes":      map[string]any{"type": "string", "description": "Observation text to append."},
				},
				"required": []string{"notes"},
			},
		},
		{
			Type:        "function",
			Name:        ToolFinalizeSoap,
			Description: "Draft the SOAP summary of the visit for the doctor to review.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"session_id": map[string]any{"type": "string"},
					"notes":      map[string]any{"type": "string", "description": "Optional final observations to include."},
				},
			},
		},
	}
}
