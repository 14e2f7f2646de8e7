package realtime

import "github.com/medvoice-ai/medvoice/pkg/realtime/events"

// EventSink receives the client's dispatched inbound events. All methods are
// invoked from the single listen loop, in arrival order; implementations
// that need to do slow work must hand off rather than block the loop.
type EventSink interface {
	// OnSessionReady fires once the endpoint acknowledges the session.
	OnSessionReady()

	// OnSpeechStarted fires when server VAD detects user speech.
	OnSpeechStarted()

	// OnSpeechStopped fires when server VAD detects end of user speech.
	OnSpeechStopped()

	// OnResponseStarted fires on response.created.
	OnResponseStarted(responseID string)

	// OnResponseFinished fires on any terminal response lifecycle event.
	OnResponseFinished(responseID string, status events.ResponseStatus)

	// OnAudioDelta carries decoded PCM bytes for the playback sink.
	OnAudioDelta(pcm []byte)

	// OnTextDelta carries an assistant text or spoken-transcript fragment.
	OnTextDelta(delta string)

	// OnUserTranscript carries the transcript of a committed user utterance.
	OnUserTranscript(text string)

	// OnToolCallDelta carries a tool-call argument fragment.
	OnToolCallDelta(callID, name, delta string)

	// OnToolCallDone closes a tool-call argument stream.
	OnToolCallDone(callID, name, arguments string)

	// OnError surfaces transport faults and non-reconcilable remote errors.
	OnError(err error)
}

// NoOpEventSink discards all events. Embed it to implement a partial sink.
type NoOpEventSink struct{}

var _ EventSink = (*NoOpEventSink)(nil)

func (NoOpEventSink) OnSessionReady()                                  {}
func (NoOpEventSink) OnSpeechStarted()                                 {}
func (NoOpEventSink) OnSpeechStopped()                                 {}
func (NoOpEventSink) OnResponseStarted(responseID string)              {}
func (NoOpEventSink) OnResponseFinished(string, events.ResponseStatus) {}
func (NoOpEventSink) OnAudioDelta(pcm []byte)                          {}
func (NoOpEventSink) OnTextDelta(delta string)                         {}
func (NoOpEventSink) OnUserTranscript(text string)                     {}
func (NoOpEventSink) OnToolCallDelta(callID, name, delta string)       {}
func (NoOpEventSink) OnToolCallDone(callID, name, arguments string)    {}
func (NoOpEventSink) OnError(err error)                                {}
