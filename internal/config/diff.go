package config

import "fmt"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider or
// database changes require a restart and are reported for logging only.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// PracticeChanged is true when any evaluation tuning value changed.
	// The new values apply to turns processed after the reload.
	PracticeChanged bool
	NewPractice     PracticeConfig

	// RestartRequired is true when a change cannot be applied live
	// (LLM provider, database DSN, listen address, TLS).
	RestartRequired bool
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Practice != new.Practice {
		d.PracticeChanged = true
		d.NewPractice = new.Practice
	}

	if !providerEntryEqual(old.Providers.LLM, new.Providers.LLM) ||
		old.Database != new.Database ||
		old.Server.ListenAddr != new.Server.ListenAddr ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = true
	}

	return d
}

// providerEntryEqual compares the scalar fields of two provider entries.
// The free-form Options map is compared shallowly by size and string forms;
// any difference counts as a change.
func providerEntryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	// Values may be nested maps, so compare their printed forms.
	for k, v := range a.Options {
		if bv, ok := b.Options[k]; !ok || fmt.Sprint(bv) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
