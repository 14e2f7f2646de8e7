package trace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentToolCall creates a span for a dispatched tool call
func InstrumentToolCall(ctx context.Context, name, callID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "tool.dispatch",
		trace.WithAttributes(
			ToolAttrs(name, callID)...,
		),
	)
}

// InstrumentResponse creates a span for a model response lifecycle event
func InstrumentResponse(ctx context.Context, responseID, state string) (context.Context, trace.Span) {
	return StartSpan(ctx, "realtime.response",
		trace.WithAttributes(
			attribute.String(AttrResponseID, responseID),
			attribute.String(AttrResponseState, state),
		),
	)
}

// InstrumentBargeIn creates a span for a user interruption of playback
func InstrumentBargeIn(ctx context.Context, backlogMs int, energy float64) (context.Context, trace.Span) {
	return StartSpan(ctx, "audio.barge_in",
		trace.WithAttributes(
			attribute.Int(AttrAudioBacklogMs, backlogMs),
			attribute.Float64(AttrAudioEnergy, energy),
		),
	)
}

// InstrumentFinalize creates a span for the finalize flow of a visit session
func InstrumentFinalize(ctx context.Context, sessionID string, forced bool) (context.Context, trace.Span) {
	return StartSpan(ctx, "session.finalize",
		trace.WithAttributes(
			attribute.String(AttrSessionID, sessionID),
			attribute.Bool("finalize.forced", forced),
		),
	)
}
