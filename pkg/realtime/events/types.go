// Package events defines the typed protocol messages exchanged with the
// realtime speech endpoint.
package events

// Modality represents the supported modalities for the session.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityAudio Modality = "audio"
)

// AudioFormat represents the supported audio formats.
type AudioFormat string

const (
	AudioFormatPCM16    AudioFormat = "pcm16"
	AudioFormatG711ULaw AudioFormat = "g711_ulaw"
	AudioFormatG711ALaw AudioFormat = "g711_alaw"
)

// ItemType represents the type of conversation item.
type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

// Role represents the role of a conversation participant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ContentType represents the type of content in a conversation item.
type ContentType string

const (
	ContentTypeInputText  ContentType = "input_text"
	ContentTypeInputAudio ContentType = "input_audio"
	ContentTypeText       ContentType = "text"
	ContentTypeAudio      ContentType = "audio"
)

// ResponseStatus represents the status of a remote response.
type ResponseStatus string

const (
	ResponseStatusInProgress ResponseStatus = "in_progress"
	ResponseStatusCompleted  ResponseStatus = "completed"
	ResponseStatusCancelled  ResponseStatus = "cancelled"
	ResponseStatusFailed     ResponseStatus = "failed"
)

// TurnDetectionType represents the type of server-side turn detection.
type TurnDetectionType string

const (
	TurnDetectionTypeServerVAD TurnDetectionType = "server_vad"
	TurnDetectionTypeNone      TurnDetectionType = "none"
)

// ErrorType represents the type of error reported by the endpoint.
type ErrorType string

const (
	ErrorTypeInvalidRequest ErrorType = "invalid_request_error"
	ErrorTypeAuthentication ErrorType = "authentication_error"
	ErrorTypeRateLimit      ErrorType = "rate_limit_error"
	ErrorTypeServer         ErrorType = "server_error"
	ErrorTypeSession        ErrorType = "session_error"
)

// SessionConfig is the session.update payload.
type SessionConfig struct {
	Modalities              []Modality           `json:"modalities,omitempty"`
	Model                   string               `json:"model,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	InputAudioFormat        AudioFormat          `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat          `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	Tools                   []Tool               `json:"tools,omitempty"`
	ToolChoice              string               `json:"tool_choice,omitempty"`
	Temperature             float64              `json:"temperature,omitempty"`
	// MaxOutputTokens accepts an integer or the string "inf".
	MaxOutputTokens any `json:"max_response_output_tokens,omitempty"`
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	Model string `json:"model,omitempty"`
}

// TurnDetection configures server-side voice activity detection.
type TurnDetection struct {
	Type              TurnDetectionType `json:"type"`
	Threshold         float64           `json:"threshold,omitempty"`
	PrefixPaddingMs   int               `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int               `json:"silence_duration_ms,omitempty"`
	CreateResponse    *bool             `json:"create_response,omitempty"`
}

// Tool describes a function the assistant may call.
type Tool struct {
	Type        string `json:"type"` // "function"
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Content represents one content part of a conversation item.
type Content struct {
	Type       ContentType `json:"type"`
	Text       string      `json:"text,omitempty"`
	Audio      string      `json:"audio,omitempty"` // base64 encoded
	Transcript string      `json:"transcript,omitempty"`
}

// ItemCreateConfig is the item payload of conversation.item.create.
type ItemCreateConfig struct {
	Type    ItemType  `json:"type"`
	Role    Role      `json:"role,omitempty"`
	CallID  string    `json:"call_id,omitempty"` // function_call_output items
	Output  string    `json:"output,omitempty"`  // function_call_output items
	Content []Content `json:"content,omitempty"`
}

// ResponseConfig is the optional response payload of response.create.
type ResponseConfig struct {
	Modalities   []Modality `json:"modalities,omitempty"`
	Instructions string     `json:"instructions,omitempty"`
	Voice        string     `json:"voice,omitempty"`
	Temperature  float64    `json:"temperature,omitempty"`
}

// Response is the remote response object carried by lifecycle events.
type Response struct {
	ID            string         `json:"id"`
	Object        string         `json:"object,omitempty"`
	Status        ResponseStatus `json:"status,omitempty"`
	StatusDetails *StatusDetails `json:"status_details,omitempty"`
}

// StatusDetails provides additional details about a response status.
type StatusDetails struct {
	Type   string       `json:"type,omitempty"`
	Reason string       `json:"reason,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail represents detailed error information.
type ErrorDetail struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
}

// FunctionCallItem is the nested item carried by one of the two tool-call
// event shapes the endpoint may emit.
type FunctionCallItem struct {
	ID        string `json:"id,omitempty"`
	Type      string `json:"type,omitempty"`
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Delta     string `json:"delta,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}
