package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"

	"github.com/medvoice-ai/medvoice/pkg/session"
	"github.com/medvoice-ai/medvoice/pkg/trace"
)

const DefaultModel = "gpt-4o-mini"

// packTurnsLimit is how many trailing turns are flattened into a prompt.
const packTurnsLimit = 50

// Config holds the provider configuration.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// Client calls the chat-completions API with a JSON response format and
// normalizes the results.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a provider client.
func NewClient(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:   openai.NewClientWithConfig(apiCfg),
		model: cfg.Model,
	}
}

// PackTurns flattens the last turns into "Role: content" lines for prompts.
func PackTurns(turns []session.Turn) string {
	if len(turns) > packTurnsLimit {
		turns = turns[len(turns)-packTurnsLimit:]
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, fmt.Sprintf("%s: %s", titleRole(t.Role), t.Content))
	}
	return strings.Join(lines, "\n")
}

func titleRole(role session.TurnRole) string {
	s := string(role)
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// GenerateSummaryReply produces a speech-first conversational reply.
func (c *Client) GenerateSummaryReply(ctx context.Context, contextText string, snapshot map[string]any, locale string) (*SummaryReply, error) {
	user := fmt.Sprintf(replyUserTemplate, contextText, marshalSnapshot(snapshot), localeOrDefault(locale))

	js, err := c.chatJSON(ctx, "reasoning.summary_reply", replySystemPrompt, user)
	if err != nil {
		return nil, err
	}

	reply := &SummaryReply{
		SpeechOutput:     strField(js, "speech_output", "Noted. What would you like to clarify next?"),
		Intent:           Intent(strings.ToLower(strField(js, "intent", string(IntentAnswer)))),
		Confidence:       floatField(js, "confidence", 0.5),
		SuggestedActions: strSlice(js, "suggested_actions", []string{"keep_discussing"}),
	}
	log.Printf("[Reasoning] reply intent=%s conf=%.2f", reply.Intent, reply.Confidence)
	return reply, nil
}

// GenerateObjectiveOnly produces the Objective section only.
func (c *Client) GenerateObjectiveOnly(ctx context.Context, turns []session.Turn, snapshot map[string]any, locale string) (*ObjectiveResult, error) {
	user := fmt.Sprintf(objectiveUserTemplate, PackTurns(turns), marshalSnapshot(snapshot), localeOrDefault(locale))

	js, err := c.chatJSON(ctx, "reasoning.objective_only", objectiveSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	result := &ObjectiveResult{
		Objective:        strField(js, "objective", "No objective data extracted."),
		SpeechOutput:     strField(js, "speech_output", "Objective drafted; please review on screen."),
		Confidence:       floatField(js, "confidence", 0.8),
		SuggestedActions: strSlice(js, "suggested_actions", []string{"approve_save", "reject_save"}),
	}
	log.Printf("[Reasoning] objective conf=%.2f", result.Confidence)
	return result, nil
}

// GenerateSummaryFinalize produces a SOAP draft for review or final save.
func (c *Client) GenerateSummaryFinalize(ctx context.Context, turns []session.Turn, snapshot map[string]any, locale string, previewOnly bool) (*FinalizeResult, error) {
	user := fmt.Sprintf(finalizeUserTemplate, PackTurns(turns), marshalSnapshot(snapshot), localeOrDefault(locale), previewOnly)

	js, err := c.chatJSON(ctx, "reasoning.summary_finalize", finalizeSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	result := &FinalizeResult{
		Soap:             coerceSoap(js["soap"]),
		NextSteps:        strSlice(js, "next_steps", nil),
		SpeechOutput:     strField(js, "speech_output", "SOAP summary prepared."),
		Confidence:       floatField(js, "confidence", 0.9),
		SuggestedActions: strSlice(js, "suggested_actions", []string{"approve_save", "reject_save"}),
	}
	log.Printf("[Reasoning] finalize preview=%t conf=%.2f", previewOnly, result.Confidence)
	return result, nil
}

// chatJSON runs one JSON-mode completion and parses the reply defensively.
func (c *Client) chatJSON(ctx context.Context, spanName, system, user string) (map[string]any, error) {
	ctx, span := trace.StartSpan(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("model", c.model))

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0.6,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: strings.TrimSpace(system)},
			{Role: openai.ChatMessageRoleUser, Content: strings.TrimSpace(user)},
		},
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return map[string]any{}, nil
	}
	return safeJSONMap(resp.Choices[0].Message.Content), nil
}

// safeJSONMap parses model output, returning an empty map on failure.
func safeJSONMap(raw string) map[string]any {
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

// coerceSoap accepts a proper soap object or, when the model returned a bare
// string by mistake, wraps it minimally.
func coerceSoap(v any) SoapNote {
	switch soap := v.(type) {
	case map[string]any:
		return SoapNote{
			Subjective: strField(soap, "subjective", ""),
			Objective:  strField(soap, "objective", ""),
			Assessment: strField(soap, "assessment", ""),
			Plan:       strField(soap, "plan", ""),
		}
	case string:
		return SoapNote{Subjective: soap}
	default:
		return SoapNote{}
	}
}

func marshalSnapshot(snapshot map[string]any) string {
	if len(snapshot) == 0 {
		return "{}"
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func localeOrDefault(locale string) string {
	if locale == "" {
		return "en"
	}
	return locale
}

func strField(m map[string]any, key, fallback string) string {
	if v, ok := m[key].(string); ok && strings.TrimSpace(v) != "" {
		return v
	}
	return fallback
}

func floatField(m map[string]any, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return f
		}
	}
	return fallback
}

func strSlice(m map[string]any, key string, fallback []string) []string {
	raw, ok := m[key].([]any)
	if !ok {
		return fallback
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
