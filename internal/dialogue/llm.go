package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phraseloop/phraseloop/pkg/provider/llm"
)

// systemPrompt instructs the model to answer with a small JSON object. The
// response is still treated as untrusted: see coerceScenario.
const systemPrompt = `You are a language tutor creating short roleplay scenarios.
Given a target phrase the learner must practice, invent a everyday situation
in which that phrase would naturally be said, and open the conversation.
Respond ONLY with a JSON object of the form
{"scenario": "<one or two sentences setting the scene>", "message": "<your opening line in the conversation>"}.
Do not reveal the target phrase verbatim in either field.`

// defaultMaxTokens caps scenario generation; scenes are two sentences plus an
// opening line.
const defaultMaxTokens = 300

// LLMOption is a functional option for configuring an [LLMGenerator].
type LLMOption func(*LLMGenerator)

// WithTemperature sets the sampling temperature for scenario generation.
// Default: 0 (provider default).
func WithTemperature(t float64) LLMOption {
	return func(g *LLMGenerator) {
		g.temperature = t
	}
}

// WithMaxTokens caps the completion token budget. Default: 300.
func WithMaxTokens(n int) LLMOption {
	return func(g *LLMGenerator) {
		g.maxTokens = n
	}
}

// LLMGenerator implements [Generator] on top of an [llm.Provider].
//
// The model's reply is a duck-typed external payload: it is parsed leniently
// and coerced into a strict [Scenario] at this boundary, with missing fields
// defaulted from [StaticGenerator].
type LLMGenerator struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
}

// Compile-time interface check.
var _ Generator = (*LLMGenerator)(nil)

// NewLLMGenerator creates an [LLMGenerator] backed by provider.
func NewLLMGenerator(provider llm.Provider, opts ...LLMOption) *LLMGenerator {
	g := &LLMGenerator{
		provider:  provider,
		maxTokens: defaultMaxTokens,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GenerateScenario implements [Generator].
func (g *LLMGenerator) GenerateScenario(ctx context.Context, expressionText string) (Scenario, error) {
	resp, err := g.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "Target phrase: " + expressionText},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return Scenario{}, fmt.Errorf("dialogue: generate scenario: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return Scenario{}, fmt.Errorf("dialogue: empty completion")
	}

	return coerceScenario(resp.Content, expressionText), nil
}

// coerceScenario validates the model's reply and coerces it into a strict
// [Scenario]. Accepted inputs:
//
//   - a JSON object with "scenario"/"scenario_text" and
//     "message"/"initial_message" string fields, optionally wrapped in a
//     Markdown code fence;
//   - any other non-empty text, which becomes the scenario with a default
//     opening line.
//
// Missing fields default to the static generator's strings.
func coerceScenario(content, expressionText string) Scenario {
	fallback, _ := StaticGenerator{}.GenerateScenario(context.Background(), expressionText)

	raw := stripCodeFence(content)

	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		slog.Debug("dialogue: non-JSON scenario payload, using raw text", "err", err)
		return Scenario{
			ScenarioText:   strings.TrimSpace(content),
			InitialMessage: fallback.InitialMessage,
		}
	}

	sc := Scenario{
		ScenarioText:   stringField(payload, "scenario", "scenario_text", "scenarioText"),
		InitialMessage: stringField(payload, "message", "initial_message", "initialMessage"),
	}
	if sc.ScenarioText == "" {
		sc.ScenarioText = fallback.ScenarioText
	}
	if sc.InitialMessage == "" {
		sc.InitialMessage = fallback.InitialMessage
	}
	return sc
}

// stringField returns the first non-empty string value found under any of the
// given keys.
func stringField(payload map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := payload[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// stripCodeFence unwraps a ```json ... ``` fenced block if the model added
// one around its reply.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
