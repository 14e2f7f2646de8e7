// Package orchestrator is the per-visit decision layer above the streaming
// client: it decides when a silence should become a response, keeps the
// running transcript, and drives the finalize flow.
package orchestrator

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/medvoice-ai/medvoice/pkg/realtime"
	"github.com/medvoice-ai/medvoice/pkg/realtime/events"
	"github.com/medvoice-ai/medvoice/pkg/reasoning"
	"github.com/medvoice-ai/medvoice/pkg/session"
	"github.com/medvoice-ai/medvoice/pkg/trace"
)

// StreamControl is the slice of the streaming client the orchestrator drives.
type StreamControl interface {
	CreateResponse() error
	CreateResponseWithInstructions(instructions string, modalities []events.Modality) error
	CancelResponse() error
	ResponseInFlight() bool
	Disconnect() error
}

// Reasoner synthesizes replies and structured notes from the transcript.
type Reasoner interface {
	GenerateSummaryReply(ctx context.Context, contextText string, snapshot map[string]any, locale string) (*reasoning.SummaryReply, error)
	GenerateSummaryFinalize(ctx context.Context, turns []session.Turn, snapshot map[string]any, locale string, previewOnly bool) (*reasoning.FinalizeResult, error)
	GenerateObjectiveOnly(ctx context.Context, turns []session.Turn, snapshot map[string]any, locale string) (*reasoning.ObjectiveResult, error)
}

// AudioControl is the local playback surface. Nil disables playback wiring
// (headless sessions driven from the browser bridge).
type AudioControl interface {
	Write(pcm []byte)
	Clear()
	BacklogMs() int
}

// UISink receives typed notifications for the operator surface.
type UISink interface {
	AudioDelta(pcm []byte)
	TextDelta(delta string)
	UserTranscript(text string)
	ObjectivePreview(sessionID string, result *reasoning.ObjectiveResult)
	SoapPreview(sessionID string, result *reasoning.FinalizeResult)
	SoapResult(sessionID string, result *reasoning.FinalizeResult)
	Status(state string)
	Error(scope string, err error)
}

// ToolDispatcher receives tool-call argument events. Nil drops them.
type ToolDispatcher interface {
	HandleDelta(callID, name, delta string)
	HandleDone(callID, name, arguments string)
}

// Config tunes the auto-response guards.
type Config struct {
	// MinUserBytes is the least captured audio between speech-start and
	// speech-stop that counts as a real utterance.
	MinUserBytes int

	// CreateCooldown is the minimum spacing between auto-created responses.
	CreateCooldown time.Duration

	// FinishDebounce keeps a speech-stop arriving right after a response
	// finished from immediately re-triggering.
	FinishDebounce time.Duration

	Locale string
}

// DefaultConfig returns the production guard values.
func DefaultConfig() Config {
	return Config{
		MinUserBytes:   6000,
		CreateCooldown: 1200 * time.Millisecond,
		FinishDebounce: 250 * time.Millisecond,
		Locale:         "en",
	}
}

// IsValid checks the configuration.
func (c *Config) IsValid() bool {
	return c.MinUserBytes > 0 && c.CreateCooldown > 0 && c.FinishDebounce >= 0
}

// Deps are the orchestrator's collaborators. Session, Stream, Reasoner and
// UI are required; Audio and Tools are optional.
type Deps struct {
	Session *session.Session
	Stream  StreamControl
	Reason  Reasoner
	Audio   AudioControl
	UI      UISink
	Tools   ToolDispatcher
}

// Orchestrator implements realtime.EventSink for one visit session.
type Orchestrator struct {
	cfg  Config
	sess *session.Session

	stream StreamControl
	reason Reasoner
	audio  AudioControl
	ui     UISink
	tools  ToolDispatcher

	mu               sync.Mutex
	muted            bool
	userBytes        int
	lastCreateAt     time.Time
	lastFinishAt     time.Time
	assistantText    strings.Builder
	awaitingApproval bool
	pendingFinalize  bool
	finalizing       bool
	closed           bool

	wg sync.WaitGroup
}

var _ realtime.EventSink = (*Orchestrator)(nil)

// New creates an orchestrator for one session.
func New(cfg Config, deps Deps) *Orchestrator {
	if !cfg.IsValid() {
		cfg = DefaultConfig()
	}
	if cfg.Locale == "" {
		cfg.Locale = "en"
	}
	return &Orchestrator{
		cfg:    cfg,
		sess:   deps.Session,
		stream: deps.Stream,
		reason: deps.Reason,
		audio:  deps.Audio,
		ui:     deps.UI,
		tools:  deps.Tools,
	}
}

// Bind attaches collaborators constructed after the orchestrator. The
// streaming client takes the orchestrator as its event sink, so it cannot
// exist first; call Bind before the client connects.
func (o *Orchestrator) Bind(stream StreamControl, tools ToolDispatcher) {
	o.stream = stream
	o.tools = tools
}

// SetMuted suppresses auto-created responses while true.
func (o *Orchestrator) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	o.mu.Unlock()
	log.Printf("[Orchestrator] muted=%t", muted)
}

// AddUserAudio accounts captured bytes toward the minimum-utterance guard.
// Called from the capture forwarding path for every frame sent upstream.
func (o *Orchestrator) AddUserAudio(n int) {
	o.mu.Lock()
	o.userBytes += n
	o.mu.Unlock()
}

// AddDoctorText records a typed doctor message and runs confirmation
// detection against it.
func (o *Orchestrator) AddDoctorText(text string) error {
	if err := o.sess.AddDoctorTurn(text, session.ModalityText); err != nil {
		return err
	}
	o.checkConfirmation(text)
	return nil
}

// DoctorMessage records a typed doctor turn and, while the session is still
// collecting, asks the reasoning provider for a short reply, which becomes
// an assistant text turn.
func (o *Orchestrator) DoctorMessage(ctx context.Context, text string) (*reasoning.SummaryReply, error) {
	if err := o.AddDoctorText(text); err != nil {
		return nil, err
	}
	if o.sess.Status() != session.StatusCollecting {
		return nil, nil
	}

	reply, err := o.reason.GenerateSummaryReply(ctx, reasoning.PackTurns(o.sess.Turns()), o.sess.Snapshot(), o.cfg.Locale)
	if err != nil {
		o.ui.Error("reply", err)
		return nil, err
	}

	o.sess.SetAssistantState(string(reply.Intent), reply.Confidence)
	if err := o.sess.AddAssistantTurn(reply.SpeechOutput, session.ModalityText); err == nil {
		o.ui.TextDelta(reply.SpeechOutput)
	}
	return reply, nil
}

// OnSessionReady implements realtime.EventSink.
func (o *Orchestrator) OnSessionReady() {
	o.ui.Status("ready")
}

// OnSpeechStarted resets the utterance byte counter.
func (o *Orchestrator) OnSpeechStarted() {
	o.mu.Lock()
	o.userBytes = 0
	o.mu.Unlock()
}

// OnSpeechStopped runs the auto-create guards and, when all pass, asks the
// streaming client for a response.
func (o *Orchestrator) OnSpeechStopped() {
	now := time.Now()
	speaking := o.stream.ResponseInFlight() || o.backlogMs() > 0

	// lastCreateAt advances only when every guard passes and a create is
	// actually issued; a suppressed stop must not start the cooldown.
	o.mu.Lock()
	bytes := o.userBytes
	ok := !o.finalizing &&
		o.sess.Status() == session.StatusCollecting &&
		!o.muted &&
		!speaking &&
		bytes >= o.cfg.MinUserBytes &&
		now.Sub(o.lastCreateAt) >= o.cfg.CreateCooldown &&
		now.Sub(o.lastFinishAt) >= o.cfg.FinishDebounce
	if ok {
		o.lastCreateAt = now
	}
	o.mu.Unlock()

	if !ok {
		log.Printf("[Orchestrator] speech stop ignored (bytes=%d speaking=%t)", bytes, speaking)
		return
	}
	if err := o.stream.CreateResponse(); err != nil {
		o.ui.Error("response", err)
	}
}

// OnResponseStarted drops any stale playback audio before the new answer.
func (o *Orchestrator) OnResponseStarted(responseID string) {
	_, span := trace.InstrumentResponse(context.Background(), responseID, "started")
	span.End()

	if o.audio != nil {
		o.audio.Clear()
	}
	o.mu.Lock()
	o.assistantText.Reset()
	o.mu.Unlock()
}

// OnResponseFinished records the assistant turn, arms the approval flag when
// the assistant asked for one, and consumes a pending finalize.
func (o *Orchestrator) OnResponseFinished(responseID string, status events.ResponseStatus) {
	o.mu.Lock()
	o.lastFinishAt = time.Now()
	text := strings.TrimSpace(o.assistantText.String())
	o.assistantText.Reset()
	runFinalize := o.pendingFinalize && !o.finalizing
	o.pendingFinalize = false
	o.mu.Unlock()

	if text != "" && status != events.ResponseStatusFailed {
		if err := o.sess.AddAssistantTurn(text, session.ModalityVoice); err == nil {
			if IsApprovalPrompt(text, o.cfg.Locale) {
				o.mu.Lock()
				o.awaitingApproval = true
				o.mu.Unlock()
			}
		}
	}

	if runFinalize {
		o.finalizeAsync(false)
	}
}

// OnAudioDelta feeds playback and mirrors the audio to the UI sink.
func (o *Orchestrator) OnAudioDelta(pcm []byte) {
	if o.audio != nil {
		o.audio.Write(pcm)
	}
	o.ui.AudioDelta(pcm)
}

// OnTextDelta accumulates the assistant utterance.
func (o *Orchestrator) OnTextDelta(delta string) {
	o.mu.Lock()
	o.assistantText.WriteString(delta)
	o.mu.Unlock()
	o.ui.TextDelta(delta)
}

// OnUserTranscript records a spoken doctor turn and checks it for a
// confirmation phrase.
func (o *Orchestrator) OnUserTranscript(text string) {
	if err := o.sess.AddDoctorTurn(text, session.ModalityVoice); err != nil {
		return
	}
	o.ui.UserTranscript(text)
	o.checkConfirmation(text)
}

// OnToolCallDelta implements realtime.EventSink.
func (o *Orchestrator) OnToolCallDelta(callID, name, delta string) {
	if o.tools != nil {
		o.tools.HandleDelta(callID, name, delta)
	}
}

// OnToolCallDone implements realtime.EventSink.
func (o *Orchestrator) OnToolCallDone(callID, name, arguments string) {
	if o.tools != nil {
		o.tools.HandleDone(callID, name, arguments)
	}
}

// OnError implements realtime.EventSink.
func (o *Orchestrator) OnError(err error) {
	o.ui.Error("realtime", err)
}

// checkConfirmation arms a pending finalize when the doctor approves a
// previously proposed save. The finalize runs after the acknowledgement
// response finishes, or immediately when nothing is in flight.
func (o *Orchestrator) checkConfirmation(text string) {
	o.mu.Lock()
	armed := o.awaitingApproval
	if armed && IsConfirmation(text, o.cfg.Locale) {
		o.awaitingApproval = false
		o.pendingFinalize = true
	}
	confirmed := o.pendingFinalize
	o.mu.Unlock()

	if !armed || !confirmed {
		return
	}
	log.Printf("[Orchestrator] verbal confirmation detected")
	if !o.stream.ResponseInFlight() {
		o.mu.Lock()
		o.pendingFinalize = false
		o.mu.Unlock()
		o.finalizeAsync(false)
	}
}

func (o *Orchestrator) finalizeAsync(forced bool) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		if err := o.Finalize(context.Background(), forced); err != nil {
			log.Printf("[Orchestrator] finalize failed: %v", err)
		}
	}()
}

// Finalize cancels any in-flight response, synthesizes the SOAP summary,
// emits it to the UI sink and marks the session finalized then saved.
// Finalization is terminal and idempotent: repeated calls are no-ops.
func (o *Orchestrator) Finalize(ctx context.Context, forced bool) error {
	o.mu.Lock()
	if o.finalizing || o.sess.Status() != session.StatusCollecting {
		o.mu.Unlock()
		return nil
	}
	o.finalizing = true
	o.pendingFinalize = false
	o.awaitingApproval = false
	o.mu.Unlock()

	ctx, span := trace.InstrumentFinalize(ctx, o.sess.ID, forced)
	defer span.End()

	if o.stream.ResponseInFlight() {
		if err := o.stream.CancelResponse(); err != nil {
			log.Printf("[Orchestrator] cancel before finalize: %v", err)
		}
	}
	if o.audio != nil {
		o.audio.Clear()
	}

	result, err := o.reason.GenerateSummaryFinalize(ctx, o.sess.Turns(), o.sess.Snapshot(), o.cfg.Locale, false)
	if err != nil {
		// Leave the session collecting so the doctor can retry.
		o.mu.Lock()
		o.finalizing = false
		o.mu.Unlock()
		trace.RecordError(span, err)
		o.ui.Error("finalize", err)
		return err
	}

	if err := o.sess.MarkFinalized(); err != nil {
		o.mu.Lock()
		o.finalizing = false
		o.mu.Unlock()
		return err
	}
	o.ui.SoapResult(o.sess.ID, result)
	if err := o.sess.MarkSaved(); err != nil {
		return err
	}
	o.ui.Status("finalized")

	if err := o.stream.Disconnect(); err != nil {
		log.Printf("[Orchestrator] disconnect after finalize: %v", err)
	}
	log.Printf("[Orchestrator] session %s finalized", o.sess.ID)
	return nil
}

// ObjectivePreview extracts the Objective section only. It mutates nothing.
func (o *Orchestrator) ObjectivePreview(ctx context.Context) (*reasoning.ObjectiveResult, error) {
	result, err := o.reason.GenerateObjectiveOnly(ctx, o.sess.Turns(), o.sess.Snapshot(), o.cfg.Locale)
	if err != nil {
		o.ui.Error("objective", err)
		return nil, err
	}
	o.ui.ObjectivePreview(o.sess.ID, result)
	return result, nil
}

// SoapPreview drafts the full SOAP note without finalizing and arms the
// verbal-approval flag so a spoken confirmation can complete the save.
func (o *Orchestrator) SoapPreview(ctx context.Context) (*reasoning.FinalizeResult, error) {
	result, err := o.reason.GenerateSummaryFinalize(ctx, o.sess.Turns(), o.sess.Snapshot(), o.cfg.Locale, true)
	if err != nil {
		o.ui.Error("soap_preview", err)
		return nil, err
	}
	o.mu.Lock()
	o.awaitingApproval = true
	o.mu.Unlock()
	o.ui.SoapPreview(o.sess.ID, result)
	return result, nil
}

func (o *Orchestrator) backlogMs() int {
	if o.audio == nil {
		return 0
	}
	return o.audio.BacklogMs()
}

// Close waits for tracked finalize work and abandons anything still pending.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	o.closed = true
	o.pendingFinalize = false
	o.mu.Unlock()
	o.wg.Wait()
	return nil
}
