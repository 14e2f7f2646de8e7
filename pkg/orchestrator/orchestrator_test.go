package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvoice-ai/medvoice/pkg/realtime/events"
	"github.com/medvoice-ai/medvoice/pkg/reasoning"
	"github.com/medvoice-ai/medvoice/pkg/session"
)

type fakeStream struct {
	mu          sync.Mutex
	creates     int
	cancels     int
	disconnects int
	inFlight    bool
}

func (f *fakeStream) CreateResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	return nil
}

func (f *fakeStream) CreateResponseWithInstructions(string, []events.Modality) error {
	return f.CreateResponse()
}

func (f *fakeStream) CancelResponse() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels++
	return nil
}

func (f *fakeStream) ResponseInFlight() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

func (f *fakeStream) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeStream) setInFlight(v bool) {
	f.mu.Lock()
	f.inFlight = v
	f.mu.Unlock()
}

func (f *fakeStream) counts() (creates, cancels, disconnects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.cancels, f.disconnects
}

type fakeReasoner struct {
	mu            sync.Mutex
	finalizeCalls int
	previewOnly   []bool
	err           error
}

func (f *fakeReasoner) GenerateSummaryReply(_ context.Context, _ string, _ map[string]any, _ string) (*reasoning.SummaryReply, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &reasoning.SummaryReply{
		SpeechOutput: "Noted. Any other symptoms?",
		Intent:       reasoning.IntentAsk,
		Confidence:   0.7,
	}, nil
}

func (f *fakeReasoner) GenerateSummaryFinalize(_ context.Context, _ []session.Turn, _ map[string]any, _ string, previewOnly bool) (*reasoning.FinalizeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.finalizeCalls++
	f.previewOnly = append(f.previewOnly, previewOnly)
	return &reasoning.FinalizeResult{
		Soap:         reasoning.SoapNote{Subjective: "fever for 2 days", Plan: "rest"},
		SpeechOutput: "SOAP summary prepared.",
		Confidence:   0.9,
	}, nil
}

func (f *fakeReasoner) GenerateObjectiveOnly(_ context.Context, _ []session.Turn, _ map[string]any, _ string) (*reasoning.ObjectiveResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &reasoning.ObjectiveResult{
		Objective:    "Temp 101F",
		SpeechOutput: "Objective drafted.",
		Confidence:   0.8,
	}, nil
}

type fakeUI struct {
	mu          sync.Mutex
	soapResults int
	previews    int
	objectives  int
	errors      []string
	statuses    []string
}

func (f *fakeUI) AudioDelta([]byte)     {}
func (f *fakeUI) TextDelta(string)      {}
func (f *fakeUI) UserTranscript(string) {}

func (f *fakeUI) ObjectivePreview(string, *reasoning.ObjectiveResult) {
	f.mu.Lock()
	f.objectives++
	f.mu.Unlock()
}

func (f *fakeUI) SoapPreview(string, *reasoning.FinalizeResult) {
	f.mu.Lock()
	f.previews++
	f.mu.Unlock()
}

func (f *fakeUI) SoapResult(string, *reasoning.FinalizeResult) {
	f.mu.Lock()
	f.soapResults++
	f.mu.Unlock()
}

func (f *fakeUI) Status(state string) {
	f.mu.Lock()
	f.statuses = append(f.statuses, state)
	f.mu.Unlock()
}

func (f *fakeUI) Error(scope string, err error) {
	f.mu.Lock()
	f.errors = append(f.errors, scope)
	f.mu.Unlock()
}

func (f *fakeUI) soapResultCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.soapResults
}

type fakeAudio struct {
	mu      sync.Mutex
	backlog int
	clears  int
}

func (f *fakeAudio) Write([]byte) {}

func (f *fakeAudio) Clear() {
	f.mu.Lock()
	f.clears++
	f.mu.Unlock()
}

func (f *fakeAudio) BacklogMs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.backlog
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *session.Session, *fakeStream, *fakeReasoner, *fakeUI, *fakeAudio) {
	t.Helper()
	store := session.NewStore()
	sess := store.Create(101, "dr-1", "en", true, map[string]any{"age": 54})
	stream := &fakeStream{}
	reason := &fakeReasoner{}
	ui := &fakeUI{}
	audio := &fakeAudio{}
	o := New(DefaultConfig(), Deps{
		Session: sess,
		Stream:  stream,
		Reason:  reason,
		Audio:   audio,
		UI:      ui,
	})
	return o, sess, stream, reason, ui, audio
}

func speak(o *Orchestrator, bytes int) {
	o.OnSpeechStarted()
	o.AddUserAudio(bytes)
	o.OnSpeechStopped()
}

func TestAutoCreate_AllGuardsPass(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	speak(o, 8000)

	creates, _, _ := stream.counts()
	assert.Equal(t, 1, creates)
}

func TestAutoCreate_RejectsShortUtterance(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	speak(o, 2000)

	creates, _, _ := stream.counts()
	assert.Zero(t, creates, "utterance below the byte floor must not create")
}

func TestAutoCreate_RespectsCooldown(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	speak(o, 8000)
	speak(o, 8000) // immediately after, inside the cooldown

	creates, _, _ := stream.counts()
	assert.Equal(t, 1, creates)
}

func TestAutoCreate_RespectsFinishDebounce(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	o.OnResponseFinished("resp_1", events.ResponseStatusCompleted)
	speak(o, 8000)

	creates, _, _ := stream.counts()
	assert.Zero(t, creates, "speech stop right after a finish must debounce")
}

func TestAutoCreate_SuppressedWhileMuted(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	o.SetMuted(true)
	speak(o, 8000)

	creates, _, _ := stream.counts()
	assert.Zero(t, creates)

	o.SetMuted(false)
	// still inside the cooldown? no: lastCreateAt never advanced
	speak(o, 8000)
	creates, _, _ = stream.counts()
	assert.Equal(t, 1, creates)
}

func TestAutoCreate_SuppressedWhileAssistantSpeaking(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	stream.setInFlight(true)
	speak(o, 8000)

	creates, _, _ := stream.counts()
	assert.Zero(t, creates, "in-flight response blocks auto-create")
}

func TestAutoCreate_SuppressedStopDoesNotBurnCooldown(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)

	// Suppressed because the assistant is mid-answer.
	stream.setInFlight(true)
	speak(o, 8000)
	creates, _, _ := stream.counts()
	require.Zero(t, creates)

	// The very next qualifying stop must create: the suppressed one did not
	// start the cooldown.
	stream.setInFlight(false)
	speak(o, 8000)
	creates, _, _ = stream.counts()
	assert.Equal(t, 1, creates, "qualifying speech-stop after a suppressed one must create")
}

func TestAutoCreate_SuppressedByPlaybackBacklog(t *testing.T) {
	o, _, stream, _, _, audio := newTestOrchestrator(t)

	audio.mu.Lock()
	audio.backlog = 200
	audio.mu.Unlock()

	speak(o, 8000)

	creates, _, _ := stream.counts()
	assert.Zero(t, creates, "queued playback audio blocks auto-create")
}

func TestAssistantTurnRecordedOnFinish(t *testing.T) {
	o, sess, _, _, _, audio := newTestOrchestrator(t)

	o.OnResponseStarted("resp_1")
	assert.Equal(t, 1, audio.clears, "new response must drop stale playback")

	o.OnTextDelta("Noted. ")
	o.OnTextDelta("Any other symptoms?")
	o.OnResponseFinished("resp_1", events.ResponseStatusCompleted)

	turns := sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, session.RoleAssistant, turns[0].Role)
	assert.Equal(t, "Noted. Any other symptoms?", turns[0].Content)
	assert.Equal(t, session.ModalityVoice, turns[0].Modality)

	// A failed response must not leave a turn behind.
	o.OnTextDelta("half a sen")
	o.OnResponseFinished("resp_2", events.ResponseStatusFailed)
	assert.Equal(t, 1, sess.TurnCount())
}

func TestUserTranscriptAddsDoctorTurn(t *testing.T) {
	o, sess, _, _, _, _ := newTestOrchestrator(t)

	o.OnUserTranscript("patient reports fever for 2 days")

	turns := sess.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, session.RoleDoctor, turns[0].Role)
	assert.Equal(t, session.ModalityVoice, turns[0].Modality)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	o, sess, stream, reason, ui, _ := newTestOrchestrator(t)
	sess.AddDoctorTurn("patient reports fever", session.ModalityText)

	require.NoError(t, o.Finalize(context.Background(), true))
	require.NoError(t, o.Finalize(context.Background(), true))

	assert.Equal(t, 1, ui.soapResultCount(), "exactly one SOAP result event")
	assert.Equal(t, 1, reason.finalizeCalls)
	assert.Equal(t, session.StatusSaved, sess.Status())

	_, _, disconnects := stream.counts()
	assert.Equal(t, 1, disconnects)
}

func TestFinalizeCancelsInFlightResponse(t *testing.T) {
	o, _, stream, _, _, _ := newTestOrchestrator(t)
	stream.setInFlight(true)

	require.NoError(t, o.Finalize(context.Background(), true))

	_, cancels, _ := stream.counts()
	assert.Equal(t, 1, cancels)
}

func TestFinalizeFailureLeavesSessionRetryable(t *testing.T) {
	o, sess, _, reason, ui, _ := newTestOrchestrator(t)
	reason.err = errors.New("provider unavailable")

	err := o.Finalize(context.Background(), true)
	require.Error(t, err)

	assert.Equal(t, session.StatusCollecting, sess.Status())
	assert.Contains(t, ui.errors, "finalize")

	// retry succeeds once the provider recovers
	reason.err = nil
	require.NoError(t, o.Finalize(context.Background(), true))
	assert.Equal(t, session.StatusSaved, sess.Status())
	assert.Equal(t, 1, ui.soapResultCount())
}

func TestVerbalConfirmationFinalizesAfterAck(t *testing.T) {
	o, sess, stream, _, ui, _ := newTestOrchestrator(t)
	sess.AddDoctorTurn("patient reports fever", session.ModalityText)

	_, err := o.SoapPreview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ui.previews)

	// Acknowledgement response is in flight when the doctor approves.
	stream.setInFlight(true)
	o.OnUserTranscript("yes, save it")
	assert.Zero(t, ui.soapResultCount(), "finalize waits for the ack response")

	stream.setInFlight(false)
	o.OnResponseFinished("resp_ack", events.ResponseStatusCompleted)

	require.Eventually(t, func() bool {
		return ui.soapResultCount() == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, o.Close())
	assert.Equal(t, session.StatusSaved, sess.Status())
}

func TestVerbalConfirmationImmediateWhenIdle(t *testing.T) {
	o, sess, stream, _, ui, _ := newTestOrchestrator(t)
	stream.setInFlight(false)

	_, err := o.SoapPreview(context.Background())
	require.NoError(t, err)

	o.OnUserTranscript("go ahead")

	require.Eventually(t, func() bool {
		return ui.soapResultCount() == 1
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, o.Close())
	assert.Equal(t, session.StatusSaved, sess.Status())
}

func TestConfirmationIgnoredWhenNotArmed(t *testing.T) {
	o, sess, _, _, ui, _ := newTestOrchestrator(t)

	o.OnUserTranscript("yes, exactly")
	require.NoError(t, o.Close())

	assert.Zero(t, ui.soapResultCount())
	assert.Equal(t, session.StatusCollecting, sess.Status())
}

func TestObjectivePreviewDoesNotMutateTurns(t *testing.T) {
	o, sess, _, _, ui, _ := newTestOrchestrator(t)
	require.NoError(t, o.AddDoctorText("patient reports fever for 2 days"))

	result, err := o.ObjectivePreview(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, result.Objective)
	assert.NotEmpty(t, result.SpeechOutput)
	assert.Equal(t, 1, ui.objectives)
	assert.Equal(t, 1, sess.TurnCount(), "preview adds no turns")
}

func TestDoctorMessageGetsReply(t *testing.T) {
	o, sess, _, _, _, _ := newTestOrchestrator(t)

	reply, err := o.DoctorMessage(context.Background(), "patient reports fever for 2 days")
	require.NoError(t, err)
	require.NotNil(t, reply)
	assert.Equal(t, reasoning.IntentAsk, reply.Intent)

	turns := sess.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, session.RoleDoctor, turns[0].Role)
	assert.Equal(t, session.RoleAssistant, turns[1].Role)
	assert.Equal(t, session.ModalityText, turns[1].Modality)

	intent, conf := sess.AssistantState()
	assert.Equal(t, "ask", intent)
	assert.Equal(t, 0.7, conf)
}

func TestIsConfirmation(t *testing.T) {
	tests := []struct {
		text   string
		locale string
		want   bool
	}{
		{"Yes, save it", "en", true},
		{"sounds good to me", "en", true},
		{"no, keep editing", "en", false},
		{"好的，保存", "zh", true},
		{"再等等", "zh", false},
		{"confirm", "fr", true}, // unknown locale falls back to English
		{"", "en", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsConfirmation(tt.text, tt.locale), "%q/%s", tt.text, tt.locale)
	}
}

func TestIsApprovalPrompt(t *testing.T) {
	assert.True(t, IsApprovalPrompt("Here is the summary. Shall I save this note?", "en"))
	assert.True(t, IsApprovalPrompt("总结完成，是否保存？", "zh-CN"))
	assert.False(t, IsApprovalPrompt("What other symptoms do you see?", "en"))
}
