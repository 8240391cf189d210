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
	"realtime":   {"openai"},
	"llm":        {"openai"},
	"embeddings": {"openai"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
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
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("realtime", cfg.Providers.Realtime.Name)
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.Realtime.Name == "" {
		errs = append(errs, errors.New("providers.realtime.name is required"))
	}

	if cfg.Tenant.RegistryPath == "" {
		errs = append(errs, errors.New("tenant.registry_path is required"))
	}

	if cfg.Providers.Embeddings.Name != "" && cfg.Retrieval.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but retrieval.embedding_dimensions is not set; defaulting to 1536")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Retrieval.PostgresDSN == "" {
		slog.Warn("providers.embeddings is configured but retrieval.postgres_dsn is empty; knowledge-base search will be unavailable")
	}

	if cfg.SMTP.Host == "" {
		slog.Warn("smtp.host is empty; post-call email notifications will be unavailable")
	}
	if cfg.Twilio.AccountSID == "" {
		slog.Warn("twilio.account_sid is empty; post-call SMS notifications will be unavailable")
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
