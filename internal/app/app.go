// Package app wires every gateway subsystem together and implements the
// per-call handler that internal/carrier invokes once a media stream's
// "start" event resolves a business (C1 → C2/C3/C5/C7).
//
// App owns the process-wide provider set plus a lazily built, per-business
// resource cache (calendar provider, appointment engine, notification
// senders) — a call never waits on anything beyond the first call routed to
// its business. HandleCall implements [carrier.CallHandler]; there is no
// App-wide mutex around call handling itself, since each call already runs
// on its own goroutine (one per accepted media WebSocket) and mutates only
// its own [callsession.Session].
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/relaycall/voicegateway/internal/bridge"
	"github.com/relaycall/voicegateway/internal/callrt"
	"github.com/relaycall/voicegateway/internal/callsession"
	"github.com/relaycall/voicegateway/internal/carrier"
	"github.com/relaycall/voicegateway/internal/config"
	"github.com/relaycall/voicegateway/internal/notify"
	"github.com/relaycall/voicegateway/internal/observe"
	"github.com/relaycall/voicegateway/internal/tenant"
	"github.com/relaycall/voicegateway/internal/tools"
	"github.com/relaycall/voicegateway/pkg/embeddings"
	"github.com/relaycall/voicegateway/pkg/llm"
	"github.com/relaycall/voicegateway/pkg/realtime"
	"github.com/relaycall/voicegateway/pkg/retrieval"
)

// Providers holds the process-wide provider instances shared by every call
// and every business. Per-business resources — calendar backend,
// notification senders, the emergency redirect hook — are not here: each
// business can configure its own, and [App] builds them lazily in
// resources.go.
type Providers struct {
	Realtime   realtime.Provider
	LLM        llm.Provider
	Embeddings embeddings.Provider
	Retrieval  retrieval.Provider
}

// App owns the process-wide wiring for the voice gateway and the per-call
// handler invoked by the carrier endpoint.
type App struct {
	cfg       *config.Config
	registry  *tenant.Registry
	providers *Providers
	metrics   *observe.Metrics

	// notifierOverride, when set via WithNotifier, is used for every
	// business instead of building a per-business notifier.
	notifierOverride *notify.Notifier

	mu        sync.Mutex
	resources map[string]*businessResources

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for [New].
type Option func(*App)

// WithMetrics attaches a metrics recorder; nil (the default) disables
// metrics rather than panicking.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithNotifier forces every business to share a single [notify.Notifier]
// instead of building one per business from the business's own sender
// identity. Production wiring leaves this unset so each business's email
// "From" address and SMS sender ID are honored; tests use it to inject
// mock senders without needing a tenant registry fixture with email/sms
// blocks filled in.
func WithNotifier(n *notify.Notifier) Option {
	return func(a *App) { a.notifierOverride = n }
}

// New creates an App wiring cfg, registry, and providers together. Unlike
// the per-call resources built lazily by businessResourcesFor, New itself
// does no network I/O: it only validates that registry has already loaded.
func New(cfg *config.Config, registry *tenant.Registry, providers *Providers, opts ...Option) (*App, error) {
	if !registry.IsInitialized() {
		return nil, fmt.Errorf("app: tenant registry must be loaded before New")
	}

	a := &App{
		cfg:       cfg,
		registry:  registry,
		providers: providers,
		resources: make(map[string]*businessResources),
	}
	for _, o := range opts {
		o(a)
	}
	return a, nil
}

// Shutdown runs the App's closers in order, stopping early once ctx is done.
// The per-business resource cache is not released here. Safe to call more
// than once; only the first call does any work.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.mu.Lock()
		closers := a.closers
		a.closers = nil
		a.mu.Unlock()

		slog.Info("app: shutting down", "closers", len(closers))
		for i, closer := range closers {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", len(closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

var _ carrier.CallHandler = (*App)(nil).HandleCall

// HandleCall implements [carrier.CallHandler]: it runs one call end to end,
// from resolving the business through the media bridge's pumps to the
// post-call notification, and returns once the call has fully ended.
func (a *App) HandleCall(ctx context.Context, meta carrier.CallMeta, conn *carrier.MediaConn) {
	logAttrs := []any{"call_id", meta.CallID, "business_id", meta.BusinessID}
	start := time.Now()

	business, err := a.registry.Config(meta.BusinessID)
	if err != nil {
		slog.Warn("app: call routed to unknown business, dropping", append(logAttrs, "err", err)...)
		return
	}

	a.recordCallHandled(ctx, meta.BusinessID)

	res, err := a.businessResourcesFor(ctx, business)
	if err != nil {
		slog.Error("app: failed to build business resources, dropping call", append(logAttrs, "err", err)...)
		return
	}

	sess := callsession.NewSession(meta.CallID, meta.BusinessID)
	sess.UserInfo.Phone = meta.From

	catalogue := tools.Build(tools.Deps{
		Session:      sess,
		Business:     business,
		Embeddings:   a.providers.Embeddings,
		Retrieval:    a.providers.Retrieval,
		Appointments: res.appointments,
		Redirect:     res.redirect,
		CallID:       meta.CallID,
	})

	sessCfg := realtime.SessionConfig{
		Instructions:  resolveInstructions(business),
		VoiceID:       resolveVoiceID(business),
		Tools:         toolDefinitions(catalogue),
		TurnDetection: realtime.DefaultTurnDetection(),
		Temperature:   0.8,
	}

	connectStart := time.Now()
	managed, err := callrt.Connect(ctx, a.providers.Realtime, sessCfg, sess, catalogue)
	if err != nil {
		a.recordProviderError(ctx, "connect")
		slog.Error("app: failed to open realtime session, dropping call", append(logAttrs, "err", err)...)
		return
	}
	defer managed.Close()
	a.recordRealtimeConnectDuration(ctx, time.Since(connectStart))

	a.incActiveCalls(ctx)
	defer a.decActiveCalls(ctx)

	if err := managed.TriggerOpeningTurn(); err != nil {
		slog.Warn("app: failed to trigger opening turn", append(logAttrs, "err", err)...)
	}

	onDTMF := func(ctx context.Context, digit string) {
		matched, err := tools.HandleEmergencyDTMF(ctx, res.redirect, meta.CallID, digit, business)
		if err != nil {
			slog.Warn("app: emergency DTMF redirect failed", append(logAttrs, "digit", digit, "err", err)...)
			return
		}
		if matched {
			slog.Info("app: emergency DTMF redirect issued", append(logAttrs, "digit", digit)...)
		}
	}

	br := bridge.New(conn, managed, onDTMF)
	slog.Info("app: call bridge starting", logAttrs...)
	if err := br.Run(ctx); err != nil {
		slog.Warn("app: call bridge ended with error", append(logAttrs, "err", err)...)
	}
	slog.Info("app: call bridge ended", logAttrs...)
	a.recordCallDuration(ctx, time.Since(start))

	if res.notifier != nil {
		snapshot := sess.Snapshot()
		go res.notifier.Notify(context.Background(), business, snapshot)
	}
}

// toolDefinitions extracts the model-facing schema from a built catalogue.
func toolDefinitions(catalogue []tools.Tool) []realtime.ToolDefinition {
	defs := make([]realtime.ToolDefinition, len(catalogue))
	for i, t := range catalogue {
		defs[i] = t.Definition
	}
	return defs
}

// resolveInstructions returns the business's system prompt, falling back to
// a generic default when none is configured (§4.3: "falling back to a
// generic default").
func resolveInstructions(business tenant.BusinessConfig) string {
	if business.Prompt != "" {
		return business.Prompt
	}
	return fmt.Sprintf(
		"You are a friendly phone receptionist for %s. Greet the caller, answer questions "+
			"about the business, and collect their name and email before ending the call.",
		business.DisplayName,
	)
}

// resolveVoiceID returns the business's configured voice or the package
// default.
func resolveVoiceID(business tenant.BusinessConfig) string {
	if business.VoiceID != "" {
		return business.VoiceID
	}
	return "alloy"
}

// recordCallHandled, recordCallDuration, recordRealtimeConnectDuration,
// recordProviderError, incActiveCalls, and decActiveCalls are thin wrappers
// around a.metrics, each a no-op when metrics are disabled (a.metrics is
// nil, the default — see WithMetrics).
func (a *App) recordCallHandled(ctx context.Context, businessID string) {
	if a.metrics == nil {
		return
	}
	a.metrics.CallsHandled.Add(ctx, 1, metric.WithAttributes(attribute.String("business_id", businessID)))
}

func (a *App) recordCallDuration(ctx context.Context, d time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.CallDuration.Record(ctx, d.Seconds())
}

func (a *App) recordRealtimeConnectDuration(ctx context.Context, d time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.RealtimeConnectDuration.Record(ctx, d.Seconds())
}

func (a *App) recordProviderError(ctx context.Context, kind string) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordProviderError(ctx, "realtime", kind)
}

func (a *App) incActiveCalls(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	a.metrics.ActiveCalls.Add(ctx, 1)
}

func (a *App) decActiveCalls(ctx context.Context) {
	if a.metrics == nil {
		return
	}
	a.metrics.ActiveCalls.Add(ctx, -1)
}
