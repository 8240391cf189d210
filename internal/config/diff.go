package config

import "reflect"

// ConfigDiff describes what changed between two process configs, so the
// watcher's onChange callback can decide what to restart versus what it
// can apply in place.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// RealtimeProviderChanged, LLMProviderChanged, EmbeddingsProviderChanged
	// are true when that provider's entry changed in any field — these
	// require reconstructing the provider instance, since credentials or
	// model selection may have changed.
	RealtimeProviderChanged   bool
	LLMProviderChanged        bool
	EmbeddingsProviderChanged bool

	// SMTPChanged / TwilioChanged mark that notification transport
	// credentials changed (C7); senders must be rebuilt.
	SMTPChanged   bool
	TwilioChanged bool
}

// Diff compares old and new configs and reports what changed. It does not
// judge whether a change is safe to apply without a restart; callers decide
// that per field.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.RealtimeProviderChanged = !reflect.DeepEqual(old.Providers.Realtime, new.Providers.Realtime)
	d.LLMProviderChanged = !reflect.DeepEqual(old.Providers.LLM, new.Providers.LLM)
	d.EmbeddingsProviderChanged = !reflect.DeepEqual(old.Providers.Embeddings, new.Providers.Embeddings)
	d.SMTPChanged = old.SMTP != new.SMTP
	d.TwilioChanged = old.Twilio != new.Twilio

	return d
}
