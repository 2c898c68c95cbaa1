package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" {
		slog.Warn("no LLM provider configured; scenario prompts will use static fallback text")
	}

	// Persistence availability
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; expressions will live in memory only")
	}

	// Practice thresholds
	p := cfg.Practice
	if p.CorrectThreshold != 0 && (p.CorrectThreshold <= 0 || p.CorrectThreshold > 1) {
		errs = append(errs, fmt.Errorf("practice.correct_threshold %.2f is out of range (0, 1]", p.CorrectThreshold))
	}
	if p.CloseThreshold != 0 && (p.CloseThreshold <= 0 || p.CloseThreshold > 1) {
		errs = append(errs, fmt.Errorf("practice.close_threshold %.2f is out of range (0, 1]", p.CloseThreshold))
	}
	if p.CorrectThreshold != 0 && p.CloseThreshold != 0 && p.CloseThreshold >= p.CorrectThreshold {
		errs = append(errs, fmt.Errorf("practice.close_threshold %.2f must be below practice.correct_threshold %.2f", p.CloseThreshold, p.CorrectThreshold))
	}
	if p.HintThreshold != 0 && (p.HintThreshold <= 0 || p.HintThreshold > 1) {
		errs = append(errs, fmt.Errorf("practice.hint_threshold %.2f is out of range (0, 1]", p.HintThreshold))
	}
	if p.MinTokenLength < 0 {
		errs = append(errs, fmt.Errorf("practice.min_token_length %d must not be negative", p.MinTokenLength))
	}
	if p.ScenarioMaxTokens < 0 {
		errs = append(errs, fmt.Errorf("practice.scenario_max_tokens %d must not be negative", p.ScenarioMaxTokens))
	}
	if p.ScenarioTemperature < 0 || p.ScenarioTemperature > 2 {
		errs = append(errs, fmt.Errorf("practice.scenario_temperature %.2f is out of range [0, 2]", p.ScenarioTemperature))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
