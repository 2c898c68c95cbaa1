package config_test

import (
	"testing"

	"github.com/phraseloop/phraseloop/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Model: "gpt-4o"},
		},
		Database: config.DatabaseConfig{PostgresDSN: "postgres://localhost/phraseloop"},
		Practice: config.PracticeConfig{
			CorrectThreshold: 0.8,
			CloseThreshold:   0.6,
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	d := config.Diff(old, new)
	if d.LogLevelChanged || d.PracticeChanged || d.RestartRequired {
		t.Errorf("diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged not set")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.RestartRequired {
		t.Error("log level change must not require a restart")
	}
}

func TestDiff_PracticeTuning(t *testing.T) {
	t.Parallel()

	old, new := baseConfig(), baseConfig()
	new.Practice.CloseThreshold = 0.5

	d := config.Diff(old, new)
	if !d.PracticeChanged {
		t.Fatal("PracticeChanged not set")
	}
	if d.NewPractice.CloseThreshold != 0.5 {
		t.Errorf("NewPractice = %+v", d.NewPractice)
	}
	if d.RestartRequired {
		t.Error("practice tuning change must not require a restart")
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"llm provider", func(c *config.Config) { c.Providers.LLM.Model = "gpt-4o-mini" }},
		{"llm options", func(c *config.Config) { c.Providers.LLM.Options = map[string]any{"seed": 7} }},
		{"database dsn", func(c *config.Config) { c.Database.PostgresDSN = "postgres://other/db" }},
		{"listen addr", func(c *config.Config) { c.Server.ListenAddr = ":9090" }},
		{"tls added", func(c *config.Config) {
			c.Server.TLS = &config.TLSConfig{CertFile: "c.pem", KeyFile: "k.pem"}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			old, new := baseConfig(), baseConfig()
			tc.mutate(new)
			if d := config.Diff(old, new); !d.RestartRequired {
				t.Errorf("diff = %+v, want RestartRequired", d)
			}
		})
	}
}
