package dialogue

import (
	"context"
	"errors"
	"testing"
	"time"
)

// failingGenerator always errors, counting its calls.
type failingGenerator struct {
	calls int
}

func (f *failingGenerator) GenerateScenario(context.Context, string) (Scenario, error) {
	f.calls++
	return Scenario{}, errors.New("boom")
}

// okGenerator always succeeds.
type okGenerator struct {
	calls int
}

func (o *okGenerator) GenerateScenario(context.Context, string) (Scenario, error) {
	o.calls++
	return Scenario{ScenarioText: "scene", InitialMessage: "hi"}, nil
}

func TestFallbackGenerator_PrimarySuccess(t *testing.T) {
	t.Parallel()

	primary := &okGenerator{}
	g := NewFallbackGenerator(primary)

	sc, err := g.GenerateScenario(context.Background(), "x")
	if err != nil {
		t.Fatalf("GenerateScenario: %v", err)
	}
	if sc.ScenarioText != "scene" {
		t.Errorf("ScenarioText = %q, want primary output", sc.ScenarioText)
	}
}

func TestFallbackGenerator_DegradesToStatic(t *testing.T) {
	t.Parallel()

	g := NewFallbackGenerator(&failingGenerator{})

	sc, err := g.GenerateScenario(context.Background(), "Nice to meet you")
	if err != nil {
		t.Fatalf("GenerateScenario must not fail: %v", err)
	}
	if sc.ScenarioText == "" || sc.InitialMessage == "" {
		t.Errorf("static fallback scenario incomplete: %+v", sc)
	}
}

func TestFallbackGenerator_NilPrimary(t *testing.T) {
	t.Parallel()

	g := NewFallbackGenerator(nil)

	sc, err := g.GenerateScenario(context.Background(), "x")
	if err != nil {
		t.Fatalf("GenerateScenario: %v", err)
	}
	if sc.ScenarioText == "" {
		t.Error("expected static scenario with nil primary")
	}
}

func TestFallbackGenerator_BypassAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	primary := &failingGenerator{}
	g := NewFallbackGenerator(primary, WithMaxFailures(2), WithCooldown(time.Minute))

	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := g.GenerateScenario(ctx, "x"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	// Two calls trip the bypass; the remaining two must not touch the
	// primary at all.
	if primary.calls != 2 {
		t.Errorf("primary called %d times, want 2", primary.calls)
	}

	// After the cooldown the primary gets a probe attempt again.
	now = now.Add(2 * time.Minute)
	if _, err := g.GenerateScenario(ctx, "x"); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if primary.calls != 3 {
		t.Errorf("primary called %d times after cooldown, want 3", primary.calls)
	}
}

func TestFallbackGenerator_SuccessResetsFailures(t *testing.T) {
	t.Parallel()

	// flaky fails once, then succeeds forever.
	calls := 0
	flaky := generatorFunc(func(ctx context.Context, expr string) (Scenario, error) {
		calls++
		if calls == 1 {
			return Scenario{}, errors.New("transient")
		}
		return Scenario{ScenarioText: "ok", InitialMessage: "hi"}, nil
	})

	g := NewFallbackGenerator(flaky, WithMaxFailures(2))
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := g.GenerateScenario(ctx, "x"); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	// One failure followed by successes never trips the bypass.
	if calls != 5 {
		t.Errorf("primary called %d times, want 5", calls)
	}
}

// generatorFunc adapts a function to the Generator interface.
type generatorFunc func(ctx context.Context, expressionText string) (Scenario, error)

func (f generatorFunc) GenerateScenario(ctx context.Context, expressionText string) (Scenario, error) {
	return f(ctx, expressionText)
}
