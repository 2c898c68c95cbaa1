package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// defaultMaxFailures is the number of consecutive primary failures after
// which the primary is bypassed for the cooldown period.
const defaultMaxFailures = 3

// defaultCooldown is how long the primary is bypassed after tripping.
const defaultCooldown = 30 * time.Second

// FallbackOption is a functional option for configuring a
// [FallbackGenerator].
type FallbackOption func(*FallbackGenerator)

// WithMaxFailures sets the consecutive-failure count that trips the bypass.
// Default: 3.
func WithMaxFailures(n int) FallbackOption {
	return func(g *FallbackGenerator) {
		g.maxFailures = n
	}
}

// WithCooldown sets how long the primary is bypassed after tripping.
// Default: 30s.
func WithCooldown(d time.Duration) FallbackOption {
	return func(g *FallbackGenerator) {
		g.cooldown = d
	}
}

// FallbackGenerator wraps a primary generator with [StaticGenerator] output
// so that scenario generation never fails a turn. After maxFailures
// consecutive primary errors the primary is bypassed entirely for a cooldown
// period, sparing turn latency from a backend that is known to be down.
//
// FallbackGenerator is safe for concurrent use.
type FallbackGenerator struct {
	primary Generator
	static  StaticGenerator

	maxFailures int
	cooldown    time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time

	// now is stubbed in tests.
	now func() time.Time
}

// Compile-time interface check.
var _ Generator = (*FallbackGenerator)(nil)

// NewFallbackGenerator wraps primary with static-scenario degradation.
func NewFallbackGenerator(primary Generator, opts ...FallbackOption) *FallbackGenerator {
	g := &FallbackGenerator{
		primary:     primary,
		maxFailures: defaultMaxFailures,
		cooldown:    defaultCooldown,
		now:         time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// GenerateScenario implements [Generator]. It never returns an error: when
// the primary fails or is in cooldown, the static scenario is returned.
func (g *FallbackGenerator) GenerateScenario(ctx context.Context, expressionText string) (Scenario, error) {
	if g.primary == nil || g.bypassed() {
		return g.static.GenerateScenario(ctx, expressionText)
	}

	sc, err := g.primary.GenerateScenario(ctx, expressionText)
	if err != nil {
		g.recordFailure(err)
		return g.static.GenerateScenario(ctx, expressionText)
	}

	g.recordSuccess()
	return sc, nil
}

// bypassed reports whether the primary is currently in cooldown. A cooldown
// that has elapsed resets the failure count.
func (g *FallbackGenerator) bypassed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failures < g.maxFailures {
		return false
	}
	if g.now().Sub(g.openedAt) >= g.cooldown {
		// Cooldown elapsed; give the primary one probe attempt.
		g.failures = g.maxFailures - 1
		return false
	}
	return true
}

func (g *FallbackGenerator) recordFailure(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.failures++
	if g.failures == g.maxFailures {
		g.openedAt = g.now()
		slog.Warn("dialogue: generator bypassed after consecutive failures",
			"failures", g.failures, "cooldown", g.cooldown, "err", err)
		return
	}
	slog.Warn("dialogue: generator failed, serving static scenario", "err", err)
}

func (g *FallbackGenerator) recordSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures = 0
}
