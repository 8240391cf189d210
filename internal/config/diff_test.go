package config_test

import (
	"testing"

	"github.com/relaycall/voicegateway/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogLevelInfo},
		Providers: config.ProvidersConfig{
			Realtime: config.ProviderEntry{Name: "openai", APIKey: "sk-1"},
		},
	}
	d := config.Diff(cfg, cfg)
	if d.LogLevelChanged {
		t.Error("expected LogLevelChanged=false for identical configs")
	}
	if d.RealtimeProviderChanged {
		t.Error("expected RealtimeProviderChanged=false for identical configs")
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogLevelDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogLevelDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
}

func TestDiff_RealtimeProviderChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			Realtime: config.ProviderEntry{Name: "openai", APIKey: "sk-old"},
		},
	}
	new := &config.Config{
		Providers: config.ProvidersConfig{
			Realtime: config.ProviderEntry{Name: "openai", APIKey: "sk-new"},
		},
	}

	d := config.Diff(old, new)
	if !d.RealtimeProviderChanged {
		t.Error("expected RealtimeProviderChanged=true")
	}
	if d.LLMProviderChanged {
		t.Error("expected LLMProviderChanged=false")
	}
}

func TestDiff_ProviderOptionsChangeDetected(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Options: map[string]any{"max_retries": 2}},
		},
	}
	new := &config.Config{
		Providers: config.ProvidersConfig{
			LLM: config.ProviderEntry{Name: "openai", Options: map[string]any{"max_retries": 5}},
		},
	}

	d := config.Diff(old, new)
	if !d.LLMProviderChanged {
		t.Error("expected LLMProviderChanged=true for a change nested in Options")
	}
}

func TestDiff_SMTPAndTwilioChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		SMTP:   config.SMTPConfig{Host: "smtp.old.example.com"},
		Twilio: config.TwilioConfig{AccountSID: "AC-old"},
	}
	new := &config.Config{
		SMTP:   config.SMTPConfig{Host: "smtp.new.example.com"},
		Twilio: config.TwilioConfig{AccountSID: "AC-new"},
	}

	d := config.Diff(old, new)
	if !d.SMTPChanged {
		t.Error("expected SMTPChanged=true")
	}
	if !d.TwilioChanged {
		t.Error("expected TwilioChanged=true")
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogLevelInfo},
		Providers: config.ProvidersConfig{Embeddings: config.ProviderEntry{Name: "openai"}},
	}
	new := &config.Config{
		Server:    config.ServerConfig{LogLevel: config.LogLevelWarn},
		Providers: config.ProvidersConfig{Embeddings: config.ProviderEntry{Name: "cohere"}},
	}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if !d.EmbeddingsProviderChanged {
		t.Error("expected EmbeddingsProviderChanged=true")
	}
}
