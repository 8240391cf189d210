// Package tenant implements the tenant registry (C6): it maps a called phone
// number to a business ID and holds each business's [BusinessConfig] —
// prompts, tool set, calendar credentials, and notification routing.
package tenant

// CalendarProviderConfig describes which calendar backend a business uses
// and how to authenticate against it. Exactly one of Google/Microsoft should
// be populated; which one is selected by Provider.
type CalendarProviderConfig struct {
	// Provider selects the calendar backend: "google" or "microsoft".
	Provider string `yaml:"provider"`

	// Timezone anchors all calendar operations for this business
	// (IANA name, e.g. "America/Denver"). Defaults to America/Denver.
	Timezone string `yaml:"timezone"`

	// BusinessHoursStart/End bound the bookable window each business day,
	// "HH:MM" 24h. Default 12:00–16:00.
	BusinessHoursStart string `yaml:"business_hours_start"`
	BusinessHoursEnd   string `yaml:"business_hours_end"`

	// Google holds credentials used when Provider == "google".
	Google GoogleCalendarCreds `yaml:"google"`

	// Microsoft holds credentials used when Provider == "microsoft".
	Microsoft MicrosoftCalendarCreds `yaml:"microsoft"`
}

// GoogleCalendarCreds holds a Google service-account key and target calendar.
type GoogleCalendarCreds struct {
	ServiceAccountJSON string `yaml:"service_account_json"`
	CalendarID         string `yaml:"calendar_id"`
}

// MicrosoftCalendarCreds holds Microsoft Graph client-credentials values.
type MicrosoftCalendarCreds struct {
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	CalendarID   string `yaml:"calendar_id"`
}

// SMSConfig describes how notifications are sent via SMS for a business.
type SMSConfig struct {
	// MessagingServiceSID selects a pooled sender. Mutually exclusive with
	// FromNumber in practice, though both may be set for driver-specific use.
	MessagingServiceSID string `yaml:"messaging_service_sid"`
	FromNumber           string   `yaml:"from_number"`
	AdminNumbers         []string `yaml:"admin_numbers"`
}

// EmailConfig describes a business's notification email identity. Only
// FromAddress and AdminAddresses are used for sending: mail always goes
// through the process-wide SMTP relay, and Provider and FallbackChain are
// decoded but not read to select or chain drivers (Provider is checked only
// by registry validation).
type EmailConfig struct {
	Provider       string   `yaml:"provider"`
	FromAddress    string   `yaml:"from_address"`
	FallbackChain  []string `yaml:"fallback_chain"`
	AdminAddresses []string `yaml:"admin_addresses"`
}

// CompanyInfo is injected into the system prompt and used by the
// post-call summary for caller-facing context.
type CompanyInfo struct {
	Phone        string   `yaml:"phone"`
	Email        string   `yaml:"email"`
	Hours        string   `yaml:"hours"`
	ServiceAreas []string `yaml:"service_areas"`
	Address      string   `yaml:"address"`
}

// FeatureFlags toggles optional functionality per business.
type FeatureFlags struct {
	RAGEnabled                bool `yaml:"rag_enabled"`
	AppointmentBookingEnabled bool `yaml:"appointment_booking_enabled"`
	EmergencyEnabled          bool `yaml:"emergency_enabled"`
}

// EmergencyConfig configures the DTMF emergency-transfer path.
type EmergencyConfig struct {
	// Digit is the DTMF digit that triggers transfer, e.g. "#" or "0".
	Digit string `yaml:"digit"`

	// TransferNumber is the E.164 number the carrier redirects the call to.
	TransferNumber string `yaml:"transfer_number"`
}

// BusinessConfig is the full per-tenant configuration record, keyed by
// BusinessID in the [Registry].
type BusinessConfig struct {
	BusinessID      string          `yaml:"business_id"`
	DisplayName     string          `yaml:"display_name"`
	IncomingNumbers []string        `yaml:"incoming_numbers"`
	Prompt          string          `yaml:"prompt"`
	Features        FeatureFlags    `yaml:"features"`
	Calendar        CalendarProviderConfig `yaml:"calendar"`
	SMS             SMSConfig       `yaml:"sms"`
	Email           EmailConfig     `yaml:"email"`
	Company         CompanyInfo     `yaml:"company"`
	Emergency       EmergencyConfig `yaml:"emergency"`

	// VoiceID selects the realtime model's voice for this business. Empty
	// falls back to the process-wide default voice.
	VoiceID string `yaml:"voice_id"`

	// Tools restricts the tool catalogue offered to the model for this
	// business. Empty means the default catalogue for the enabled features.
	Tools []string `yaml:"tools"`
}

// registryFile is the on-disk shape of the tenant registry file: a flat list
// of business configs.
type registryFile struct {
	Businesses []BusinessConfig `yaml:"businesses"`
}
