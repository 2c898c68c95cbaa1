// Package mock provides a test double for the dialogue.Generator interface.
package mock

import (
	"context"
	"sync"

	"github.com/phraseloop/phraseloop/internal/dialogue"
)

// GenerateCall records a single invocation of GenerateScenario.
type GenerateCall struct {
	// Ctx is the context passed to GenerateScenario.
	Ctx context.Context
	// ExpressionText is the target phrase passed to GenerateScenario.
	ExpressionText string
}

// Generator is a mock implementation of dialogue.Generator.
// Zero values cause GenerateScenario to return an empty Scenario and nil
// error. Set Err to inject failures.
type Generator struct {
	mu sync.Mutex

	// Scenario is returned by GenerateScenario.
	Scenario dialogue.Scenario

	// Err, if non-nil, is returned as the error from GenerateScenario.
	Err error

	// Calls records every invocation of GenerateScenario in order.
	Calls []GenerateCall
}

// GenerateScenario records the call and returns Scenario, Err.
func (g *Generator) GenerateScenario(ctx context.Context, expressionText string) (dialogue.Scenario, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = append(g.Calls, GenerateCall{Ctx: ctx, ExpressionText: expressionText})
	return g.Scenario, g.Err
}

// CallCount returns the number of recorded calls. Thread-safe.
func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (g *Generator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Calls = nil
}

// Ensure Generator implements dialogue.Generator at compile time.
var _ dialogue.Generator = (*Generator)(nil)
