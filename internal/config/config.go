// Package config provides the process-level configuration schema, loader,
// and provider registry for the voice gateway (§4.6, §6). It is distinct
// from [tenant.Registry], which holds per-business configuration that can be
// hot-reloaded independently of this process config.
package config

import "time"

// Config is the root configuration structure for the gateway process.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Tenant    TenantConfig    `yaml:"tenant"`
	SMTP      SMTPConfig      `yaml:"smtp"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// LogLevel controls slog verbosity.
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// IsValid reports whether l is one of the recognised level names.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError, "":
		return true
	default:
		return false
	}
}

// ServerConfig holds network and logging settings for the carrier-facing
// HTTP/WebSocket endpoint (C1).
type ServerConfig struct {
	// ListenAddr is the TCP address the carrier endpoint listens on (e.g., ":8443").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// PublicStreamURL is the carrier-reachable wss:// base URL returned in
	// the call-setup streaming directive, e.g. "wss://gateway.example.com/media".
	PublicStreamURL string `yaml:"public_stream_url"`

	// SignatureSecret validates the carrier's call-setup webhook signature.
	// Empty disables verification (development only).
	SignatureSecret string `yaml:"signature_secret"`
}

// ProvidersConfig declares which provider implementation and credentials to
// use for each external dependency. Each field selects a named provider
// registered in the [Registry].
type ProvidersConfig struct {
	Realtime   ProviderEntry `yaml:"realtime"`
	LLM        ProviderEntry `yaml:"llm"`
	Embeddings ProviderEntry `yaml:"embeddings"`
}

// ProviderEntry is the common configuration block shared by all provider types.
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by
	// the standard fields above.
	Options map[string]any `yaml:"options"`
}

// RetrievalConfig holds settings for the knowledge-base semantic search layer.
type RetrievalConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the pgvector store.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingDimensions is the vector dimension used for the embeddings
	// column. Must match the model configured in Providers.Embeddings.
	EmbeddingDimensions int `yaml:"embedding_dimensions"`
}

// TenantConfig locates the per-business registry file (C6).
type TenantConfig struct {
	// RegistryPath is the filesystem path to the tenant registry YAML file.
	RegistryPath string `yaml:"registry_path"`

	// ReloadInterval controls how often the registry file is polled for
	// changes. Zero uses the tenant package's default.
	ReloadInterval time.Duration `yaml:"reload_interval"`
}

// SMTPConfig holds the shared SMTP relay credentials used to send post-call
// summary emails. Per-business From address and recipients live in
// [tenant.BusinessConfig].
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"start_tls"`
}

// TwilioConfig holds the shared Twilio account credentials used to send
// post-call summary SMS. Per-business from number / messaging service SID
// live in [tenant.BusinessConfig].
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
}

// ObservabilityConfig controls the Prometheus metrics exporter (§5).
type ObservabilityConfig struct {
	// MetricsAddr is the address the Prometheus scrape endpoint listens on.
	// Empty disables the exporter.
	MetricsAddr string `yaml:"metrics_addr"`
}
