package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ServerEventType represents the type of server event.
type ServerEventType string

const (
	ServerEventTypeError                         ServerEventType = "error"
	ServerEventTypeSessionCreated                ServerEventType = "session.created"
	ServerEventTypeSessionUpdated                ServerEventType = "session.updated"
	ServerEventTypeInputAudioBufferCommitted     ServerEventType = "input_audio_buffer.committed"
	ServerEventTypeInputAudioBufferSpeechStarted ServerEventType = "input_audio_buffer.speech_started"
	ServerEventTypeInputAudioBufferSpeechStopped ServerEventType = "input_audio_buffer.speech_stopped"
	ServerEventTypeConversationItemCreated       ServerEventType = "conversation.item.created"

	ServerEventTypeInputAudioTranscriptionCompleted ServerEventType = "conversation.item.input_audio_transcription.completed"
	ServerEventTypeInputAudioTranscriptionFailed    ServerEventType = "conversation.item.input_audio_transcription.failed"

	ServerEventTypeResponseCreated              ServerEventType = "response.created"
	ServerEventTypeResponseCompleted            ServerEventType = "response.completed"
	ServerEventTypeResponseCancelled            ServerEventType = "response.canceled"
	ServerEventTypeResponseFailed               ServerEventType = "response.failed"
	ServerEventTypeResponseDone                 ServerEventType = "response.done"
	ServerEventTypeResponseOutputItemAdded      ServerEventType = "response.output_item.added"
	ServerEventTypeResponseContentPartAdded     ServerEventType = "response.content_part.added"
	ServerEventTypeResponseTextDelta            ServerEventType = "response.text.delta"
	ServerEventTypeResponseTextDone             ServerEventType = "response.text.done"
	ServerEventTypeResponseAudioDelta           ServerEventType = "response.audio.delta"
	ServerEventTypeResponseAudioDone            ServerEventType = "response.audio.done"
	ServerEventTypeResponseAudioTranscriptDelta ServerEventType = "response.audio_transcript.delta"
	ServerEventTypeResponseAudioTranscriptDone  ServerEventType = "response.audio_transcript.done"

	ServerEventTypeResponseFunctionCallArgumentsDelta ServerEventType = "response.function_call_arguments.delta"
	ServerEventTypeResponseFunctionCallArgumentsDone  ServerEventType = "response.function_call_arguments.done"
)

// ServerEvent is the interface for all server events.
type ServerEvent interface {
	ServerEventType() ServerEventType
}

// BaseServerEvent contains common fields for all server events.
type BaseServerEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    ServerEventType `json:"type"`
}

func (e BaseServerEvent) ServerEventType() ServerEventType {
	return e.Type
}

// ErrorEvent reports an error from the endpoint.
type ErrorEvent struct {
	BaseServerEvent
	Error ErrorDetail `json:"error"`
}

// SessionCreatedEvent is sent once after the connection is established.
type SessionCreatedEvent struct {
	BaseServerEvent
	Session SessionConfig `json:"session"`
}

// SessionUpdatedEvent acknowledges a session.update.
type SessionUpdatedEvent struct {
	BaseServerEvent
	Session SessionConfig `json:"session"`
}

// InputAudioBufferCommittedEvent acknowledges a commit.
type InputAudioBufferCommittedEvent struct {
	BaseServerEvent
	PreviousItemID string `json:"previous_item_id,omitempty"`
	ItemID         string `json:"item_id"`
}

// InputAudioBufferSpeechStartedEvent is sent when server VAD detects speech.
type InputAudioBufferSpeechStartedEvent struct {
	BaseServerEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

// InputAudioBufferSpeechStoppedEvent is sent when server VAD detects silence.
type InputAudioBufferSpeechStoppedEvent struct {
	BaseServerEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// ConversationItemCreatedEvent acknowledges an item creation.
type ConversationItemCreatedEvent struct {
	BaseServerEvent
	Item FunctionCallItem `json:"item"`
}

// InputAudioTranscriptionCompletedEvent carries the transcript of a
// committed user utterance.
type InputAudioTranscriptionCompletedEvent struct {
	BaseServerEvent
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// InputAudioTranscriptionFailedEvent reports a transcription failure.
type InputAudioTranscriptionFailedEvent struct {
	BaseServerEvent
	ItemID string      `json:"item_id"`
	Error  ErrorDetail `json:"error"`
}

// ResponseCreatedEvent marks the start of a response lifecycle.
type ResponseCreatedEvent struct {
	BaseServerEvent
	Response Response `json:"response"`
}

// ResponseFinishedEvent covers the four terminal lifecycle events
// (completed, canceled, failed, done); they share one payload shape.
type ResponseFinishedEvent struct {
	BaseServerEvent
	Response Response `json:"response"`
}

// ResponseTextDeltaEvent streams a text fragment.
type ResponseTextDeltaEvent struct {
	BaseServerEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// ResponseAudioDeltaEvent streams a base64 audio fragment.
type ResponseAudioDeltaEvent struct {
	BaseServerEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

// ResponseAudioTranscriptDeltaEvent streams the transcript of spoken output.
type ResponseAudioTranscriptDeltaEvent struct {
	BaseServerEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// ResponseAudioTranscriptDoneEvent carries the full transcript of spoken output.
type ResponseAudioTranscriptDoneEvent struct {
	BaseServerEvent
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// ResponseFunctionCallArgumentsDeltaEvent streams a tool-call argument
// fragment. The endpoint emits two shapes: call id and delta at the top
// level, or nested under an item object; Call normalizes both.
type ResponseFunctionCallArgumentsDeltaEvent struct {
	BaseServerEvent
	ResponseID string            `json:"response_id,omitempty"`
	ItemID     string            `json:"item_id,omitempty"`
	CallID     string            `json:"call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
	Delta      string            `json:"delta,omitempty"`
	Item       *FunctionCallItem `json:"item,omitempty"`
}

// Call returns the call id, tool name, and argument fragment, whichever
// shape the event arrived in.
func (e *ResponseFunctionCallArgumentsDeltaEvent) Call() (callID, name, delta string) {
	callID, name, delta = e.CallID, e.Name, e.Delta
	if e.Item != nil {
		if callID == "" {
			callID = e.Item.CallID
		}
		if callID == "" {
			callID = e.Item.ID
		}
		if name == "" {
			name = e.Item.Name
		}
		if delta == "" {
			delta = e.Item.Delta
		}
	}
	return callID, name, delta
}

// ResponseFunctionCallArgumentsDoneEvent closes a tool-call argument stream.
// Arguments may carry the full argument text; when absent the accumulated
// deltas are authoritative.
type ResponseFunctionCallArgumentsDoneEvent struct {
	BaseServerEvent
	ResponseID string            `json:"response_id,omitempty"`
	ItemID     string            `json:"item_id,omitempty"`
	CallID     string            `json:"call_id,omitempty"`
	Name       string            `json:"name,omitempty"`
	Arguments  string            `json:"arguments,omitempty"`
	Item       *FunctionCallItem `json:"item,omitempty"`
}

// Call returns the call id, tool name, and full argument text, whichever
// shape the event arrived in.
func (e *ResponseFunctionCallArgumentsDoneEvent) Call() (callID, name, arguments string) {
	callID, name, arguments = e.CallID, e.Name, e.Arguments
	if e.Item != nil {
		if callID == "" {
			callID = e.Item.CallID
		}
		if callID == "" {
			callID = e.Item.ID
		}
		if name == "" {
			name = e.Item.Name
		}
		if arguments == "" {
			arguments = e.Item.Arguments
		}
	}
	return callID, name, arguments
}

// IsToolArgumentsDelta reports whether the raw event type is a tool-call
// argument fragment in any of the protocol's alternative spellings.
func IsToolArgumentsDelta(t ServerEventType) bool {
	s := string(t)
	return strings.HasSuffix(s, "function_call_arguments.delta") ||
		strings.HasSuffix(s, "tool_call.arguments.delta")
}

// IsToolArgumentsDone reports whether the raw event type closes a tool-call
// argument stream in any of the protocol's alternative spellings.
func IsToolArgumentsDone(t ServerEventType) bool {
	s := string(t)
	return strings.HasSuffix(s, "function_call_arguments.done") ||
		strings.HasSuffix(s, "tool_call.arguments.done")
}

// ParseServerEvent parses a JSON message into a typed ServerEvent.
// Unrecognized event types return the base event rather than an error;
// the protocol is versioned and may add types.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var base BaseServerEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("failed to parse event type: %w", err)
	}

	var event ServerEvent
	var err error

	switch base.Type {
	case ServerEventTypeError:
		var e ErrorEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeSessionCreated:
		var e SessionCreatedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeSessionUpdated:
		var e SessionUpdatedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioBufferCommitted:
		var e InputAudioBufferCommittedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioBufferSpeechStarted:
		var e InputAudioBufferSpeechStartedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioBufferSpeechStopped:
		var e InputAudioBufferSpeechStoppedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeConversationItemCreated:
		var e ConversationItemCreatedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioTranscriptionCompleted:
		var e InputAudioTranscriptionCompletedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeInputAudioTranscriptionFailed:
		var e InputAudioTranscriptionFailedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseCreated:
		var e ResponseCreatedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseCompleted,
		ServerEventTypeResponseCancelled,
		ServerEventTypeResponseFailed,
		ServerEventTypeResponseDone:
		var e ResponseFinishedEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseTextDelta:
		var e ResponseTextDeltaEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseAudioDelta:
		var e ResponseAudioDeltaEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseAudioTranscriptDelta:
		var e ResponseAudioTranscriptDeltaEvent
		err = json.Unmarshal(data, &e)
		event = &e

	case ServerEventTypeResponseAudioTranscriptDone:
		var e ResponseAudioTranscriptDoneEvent
		err = json.Unmarshal(data, &e)
		event = &e

	default:
		switch {
		case IsToolArgumentsDelta(base.Type):
			var e ResponseFunctionCallArgumentsDeltaEvent
			err = json.Unmarshal(data, &e)
			event = &e
		case IsToolArgumentsDone(base.Type):
			var e ResponseFunctionCallArgumentsDoneEvent
			err = json.Unmarshal(data, &e)
			event = &e
		default:
			return &base, nil
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to parse %s event: %w", base.Type, err)
	}

	return event, nil
}
