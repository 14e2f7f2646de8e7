package trace

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys used throughout the application
const (
	// Session attributes
	AttrSessionID = "session.id"

	// Audio attributes
	AttrAudioBacklogMs = "audio.backlog_ms"
	AttrAudioEnergy    = "audio.energy"

	// Realtime attributes
	AttrResponseID    = "realtime.response_id"
	AttrResponseState = "realtime.response_state"

	// Tool attributes
	AttrToolName   = "tool.name"
	AttrToolCallID = "tool.call_id"
)

// ToolAttrs creates attributes for tool dispatch
func ToolAttrs(name, callID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.String(AttrToolCallID, callID),
	}
}
