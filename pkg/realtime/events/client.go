package events

// ClientEventType represents the type of client event.
type ClientEventType string

const (
	ClientEventTypeSessionUpdate          ClientEventType = "session.update"
	ClientEventTypeInputAudioBufferAppend ClientEventType = "input_audio_buffer.append"
	ClientEventTypeInputAudioBufferCommit ClientEventType = "input_audio_buffer.commit"
	ClientEventTypeConversationItemCreate ClientEventType = "conversation.item.create"
	ClientEventTypeResponseCreate         ClientEventType = "response.create"
	ClientEventTypeResponseCancel         ClientEventType = "response.cancel"
)

// ClientEvent is the interface for all client events.
type ClientEvent interface {
	ClientEventType() ClientEventType
}

// BaseClientEvent contains common fields for all client events.
type BaseClientEvent struct {
	EventID string          `json:"event_id,omitempty"`
	Type    ClientEventType `json:"type"`
}

func (e BaseClientEvent) ClientEventType() ClientEventType {
	return e.Type
}

// SessionUpdateEvent updates the session configuration.
type SessionUpdateEvent struct {
	BaseClientEvent
	Session SessionConfig `json:"session"`
}

func NewSessionUpdateEvent(cfg SessionConfig) *SessionUpdateEvent {
	return &SessionUpdateEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeSessionUpdate},
		Session:         cfg,
	}
}

// InputAudioBufferAppendEvent appends base64 audio to the input buffer.
type InputAudioBufferAppendEvent struct {
	BaseClientEvent
	Audio string `json:"audio"`
}

func NewInputAudioBufferAppendEvent(audioBase64 string) *InputAudioBufferAppendEvent {
	return &InputAudioBufferAppendEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeInputAudioBufferAppend},
		Audio:           audioBase64,
	}
}

// InputAudioBufferCommitEvent signals end-of-utterance on the input buffer.
type InputAudioBufferCommitEvent struct {
	BaseClientEvent
}

func NewInputAudioBufferCommitEvent() *InputAudioBufferCommitEvent {
	return &InputAudioBufferCommitEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeInputAudioBufferCommit},
	}
}

// ConversationItemCreateEvent creates a new conversation item.
type ConversationItemCreateEvent struct {
	BaseClientEvent
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ItemCreateConfig `json:"item"`
}

func NewConversationItemCreateEvent(item ItemCreateConfig) *ConversationItemCreateEvent {
	return &ConversationItemCreateEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeConversationItemCreate},
		Item:            item,
	}
}

// NewSystemMessageEvent creates a system-role text item.
func NewSystemMessageEvent(text string) *ConversationItemCreateEvent {
	return NewConversationItemCreateEvent(ItemCreateConfig{
		Type: ItemTypeMessage,
		Role: RoleSystem,
		Content: []Content{
			{Type: ContentTypeInputText, Text: text},
		},
	})
}

// NewFunctionCallOutputEvent creates a function_call_output item answering
// the given tool call.
func NewFunctionCallOutputEvent(callID, output string) *ConversationItemCreateEvent {
	return NewConversationItemCreateEvent(ItemCreateConfig{
		Type:   ItemTypeFunctionCallOutput,
		CallID: callID,
		Output: output,
	})
}

// ResponseCreateEvent triggers the creation of a response.
type ResponseCreateEvent struct {
	BaseClientEvent
	Response *ResponseConfig `json:"response,omitempty"`
}

func NewResponseCreateEvent(cfg *ResponseConfig) *ResponseCreateEvent {
	return &ResponseCreateEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeResponseCreate},
		Response:        cfg,
	}
}

// ResponseCancelEvent requests cancellation of the active response.
type ResponseCancelEvent struct {
	BaseClientEvent
	ResponseID string `json:"response_id,omitempty"`
}

func NewResponseCancelEvent(responseID string) *ResponseCancelEvent {
	return &ResponseCancelEvent{
		BaseClientEvent: BaseClientEvent{Type: ClientEventTypeResponseCancel},
		ResponseID:      responseID,
	}
}
