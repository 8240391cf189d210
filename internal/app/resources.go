package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/carrier"
	"github.com/relaycall/voicegateway/internal/convo"
	"github.com/relaycall/voicegateway/internal/notify"
	"github.com/relaycall/voicegateway/internal/resilience"
	"github.com/relaycall/voicegateway/internal/tenant"
	"github.com/relaycall/voicegateway/internal/tools"
	"github.com/relaycall/voicegateway/pkg/calendar"
	calgoogle "github.com/relaycall/voicegateway/pkg/calendar/google"
	calmicrosoft "github.com/relaycall/voicegateway/pkg/calendar/microsoft"
	"github.com/relaycall/voicegateway/pkg/email"
	"github.com/relaycall/voicegateway/pkg/sms"
	"github.com/relaycall/voicegateway/pkg/sms/twilio"
)

// defaultBusinessHoursStart and defaultBusinessHoursEnd anchor the bookable
// window when a business leaves [tenant.CalendarProviderConfig]'s hours
// unset (§4.4, tenant/config.go doc: "Default 12:00–16:00").
const (
	defaultBusinessHoursStart = "12:00"
	defaultBusinessHoursEnd   = "16:00"
	defaultTimezone           = "America/Denver"
)

// businessResources bundles the dependencies built once per business and
// reused across every call routed to it: a calendar backend, the
// appointment sub-flow engine wrapping it, a post-call notifier built from
// the business's own sender identity, and the emergency redirect hook.
type businessResources struct {
	appointments *convo.AppointmentEngine
	notifier     *notify.Notifier
	redirect     tools.RedirectFunc
}

// businessResourcesFor returns the cached resources for business, building
// them on first use. Only successful builds are cached: a construction
// failure (bad calendar credentials, for instance) is returned without being
// stored, so the next call routed to that business runs the build again.
func (a *App) businessResourcesFor(ctx context.Context, business tenant.BusinessConfig) (*businessResources, error) {
	a.mu.Lock()
	if res, ok := a.resources[business.BusinessID]; ok {
		a.mu.Unlock()
		return res, nil
	}
	a.mu.Unlock()

	res, err := a.buildBusinessResources(ctx, business)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.resources[business.BusinessID] = res
	a.mu.Unlock()
	return res, nil
}

func (a *App) buildBusinessResources(ctx context.Context, business tenant.BusinessConfig) (*businessResources, error) {
	res := &businessResources{}

	if business.Features.AppointmentBookingEnabled {
		calProvider, calType, loc, err := buildCalendarProvider(ctx, business.Calendar)
		if err != nil {
			return nil, fmt.Errorf("build calendar provider: %w", err)
		}
		res.appointments = convo.NewAppointmentEngine(calType, calProvider, loc)
	}

	if a.notifierOverride != nil {
		res.notifier = a.notifierOverride
	} else {
		res.notifier = &notify.Notifier{
			LLM:   a.providers.LLM,
			Email: a.buildEmailSender(business),
			SMS:   a.buildSMSSender(business),
		}
	}

	if business.Features.EmergencyEnabled {
		res.redirect = carrier.NewTwilioRedirector(a.cfg.Twilio.AccountSID, a.cfg.Twilio.AuthToken).Redirect
	}

	return res, nil
}

// buildCalendarProvider constructs the configured calendar backend wrapped
// in a single-entry [resilience.CalendarFallback], giving every business a
// circuit breaker around its calendar calls even when it configures only
// one backend (§4.4: calendar failures must not take down the call).
func buildCalendarProvider(ctx context.Context, cfg tenant.CalendarProviderConfig) (calendar.Provider, callsession.CalendarType, *time.Location, error) {
	loc, err := resolveLocation(cfg.Timezone)
	if err != nil {
		return nil, "", nil, err
	}
	dayStart := parseHHMM(cfg.BusinessHoursStart, defaultBusinessHoursStart)
	dayEnd := parseHHMM(cfg.BusinessHoursEnd, defaultBusinessHoursEnd)

	switch strings.ToLower(cfg.Provider) {
	case "google":
		provider, err := calgoogle.New(ctx, []byte(cfg.Google.ServiceAccountJSON), cfg.Google.CalendarID, loc, dayStart, dayEnd)
		if err != nil {
			return nil, "", nil, fmt.Errorf("calendar/google: %w", err)
		}
		fb := resilience.NewCalendarFallback(provider, "google", resilience.FallbackConfig{})
		return fb, callsession.CalendarGoogle, loc, nil

	case "microsoft":
		provider := calmicrosoft.New(ctx, cfg.Microsoft.TenantID, cfg.Microsoft.ClientID, cfg.Microsoft.ClientSecret, cfg.Microsoft.CalendarID, loc, dayStart, dayEnd)
		fb := resilience.NewCalendarFallback(provider, "microsoft", resilience.FallbackConfig{})
		return fb, callsession.CalendarMicrosoft, loc, nil

	default:
		return nil, "", nil, fmt.Errorf("unknown calendar provider %q", cfg.Provider)
	}
}

// buildEmailSender wraps the shared SMTP relay in a single-entry
// [resilience.EmailFallback] using the business's From address. Returns nil
// when the business has no From address configured — notify.Notifier
// treats a nil Email as "skip this channel".
func (a *App) buildEmailSender(business tenant.BusinessConfig) email.Sender {
	if business.Email.FromAddress == "" {
		return nil
	}
	smtpCfg := email.SMTPConfig{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		Username: a.cfg.SMTP.Username,
		Password: a.cfg.SMTP.Password,
		StartTLS: a.cfg.SMTP.StartTLS,
	}
	primary := email.New(smtpCfg, business.Email.FromAddress)
	return resilience.NewEmailFallback(primary, "smtp", resilience.FallbackConfig{})
}

// buildSMSSender wraps the shared Twilio account in a single-entry
// [resilience.SMSFallback] using the business's sender identity. Returns nil
// when neither a from number nor a messaging service SID is configured.
func (a *App) buildSMSSender(business tenant.BusinessConfig) sms.Sender {
	if business.SMS.FromNumber == "" && business.SMS.MessagingServiceSID == "" {
		return nil
	}
	primary := twilio.New(a.cfg.Twilio.AccountSID, a.cfg.Twilio.AuthToken, business.SMS.FromNumber, business.SMS.MessagingServiceSID)
	return resilience.NewSMSFallback(primary, "twilio", resilience.FallbackConfig{})
}

func resolveLocation(tz string) (*time.Location, error) {
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load location %q: %w", tz, err)
	}
	return loc, nil
}

// parseHHMM parses a "HH:MM" 24h string into an offset from local midnight,
// falling back to def (also "HH:MM") when s is empty or malformed.
func parseHHMM(s, def string) time.Duration {
	d, err := parseHHMMStrict(s)
	if err == nil {
		return d
	}
	d, err = parseHHMMStrict(def)
	if err != nil {
		return 0
	}
	return d
}

func parseHHMMStrict(s string) (time.Duration, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, nil
}
