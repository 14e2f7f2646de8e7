package tools

import "github.com/medvoice-ai/medvoice/pkg/reasoning"

// Tagged result variants, one per tool, sent back as the function output.

// SaveObservationResult answers a save_observation call.
type SaveObservationResult struct {
	Status    string `json:"status"`
	SessionID string `json:"session_id"`
	Notes     string `json:"notes,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FinalizeSoapResult answers a finalize_soap call.
type FinalizeSoapResult struct {
	Status       string             `json:"status"`
	SessionID    string             `json:"session_id"`
	Soap         reasoning.SoapNote `json:"soap"`
	SpeechOutput string             `json:"speech_output,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// UnknownToolResult answers a call naming no registered tool.
type UnknownToolResult struct {
	Status string `json:"status"`
	Tool   string `json:"tool"`
	Error  string `json:"error"`
}
