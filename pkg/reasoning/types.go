// Package reasoning wraps the external synthesis provider behind typed
// request/response structures with normalized defaults, so callers never see
// a half-shaped model reply.
package reasoning

// Intent is the assistant's classification of its own reply.
type Intent string

const (
	IntentAsk              Intent = "ask"
	IntentAnswer           Intent = "answer"
	IntentProposeObjective Intent = "propose_objective"
	IntentProposeFinalize  Intent = "propose_finalize"
)

// SummaryReply is a conversational reply in the discovery loop.
type SummaryReply struct {
	SpeechOutput     string   `json:"speech_output"`
	Intent           Intent   `json:"intent"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// ObjectiveResult is an Objective/Observation-only preview.
type ObjectiveResult struct {
	Objective        string   `json:"objective"`
	SpeechOutput     string   `json:"speech_output"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}

// SoapNote is the structured clinical summary.
type SoapNote struct {
	Subjective string `json:"subjective"`
	Objective  string `json:"objective"`
	Assessment string `json:"assessment"`
	Plan       string `json:"plan"`
}

// FinalizeResult is a full SOAP draft, preview or final.
type FinalizeResult struct {
	Soap             SoapNote `json:"soap"`
	NextSteps        []string `json:"next_steps"`
	SpeechOutput     string   `json:"speech_output"`
	Confidence       float64  `json:"confidence"`
	SuggestedActions []string `json:"suggested_actions"`
}
