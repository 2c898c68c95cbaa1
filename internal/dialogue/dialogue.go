// Package dialogue produces the conversational scenarios learners respond
// to. The tutoring engine treats the generator as an external collaborator:
// scenario text is opaque, and generator failures must never fail a turn —
// callers degrade to [StaticGenerator] output instead.
package dialogue

import "context"

// Scenario is the strict shape the engine consumes. Whatever the backing
// model returns is validated and coerced into this structure at the boundary,
// with missing fields defaulted to safe fallback strings.
type Scenario struct {
	// ScenarioText sets the scene (e.g., "You are at a job interview...").
	ScenarioText string

	// InitialMessage is the opening line of the conversation partner.
	InitialMessage string
}

// Generator produces a scenario built around a target expression.
//
// Implementations may perform network I/O and must respect context
// cancellation.
type Generator interface {
	// GenerateScenario returns a scenario designed to elicit the given
	// target expression from the learner.
	GenerateScenario(ctx context.Context, expressionText string) (Scenario, error)
}

// StaticGenerator returns canned scenario text. It backs the engine's
// graceful-degradation path and DSN-less development mode; it never fails.
type StaticGenerator struct{}

// Compile-time interface check.
var _ Generator = (*StaticGenerator)(nil)

// GenerateScenario implements [Generator].
func (StaticGenerator) GenerateScenario(_ context.Context, expressionText string) (Scenario, error) {
	return Scenario{
		ScenarioText:   "You are chatting with a friendly conversation partner. Try to use the phrase \"" + expressionText + "\" naturally in your reply.",
		InitialMessage: "Hi! Let's practice together — go ahead, start whenever you're ready.",
	}, nil
}
