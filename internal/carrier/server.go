package carrier

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/relaycall/voicegateway/internal/health"
	"github.com/relaycall/voicegateway/internal/observe"
	"github.com/relaycall/voicegateway/internal/tenant"
)

// CallHandler is invoked once per accepted media stream, after its "start"
// event has resolved a [CallMeta]. It owns the call for as long as it runs:
// typical implementations build a realtime session and an
// [bridge.Bridge], run the bridge to completion, and return when the call
// ends. The Server closes the underlying WebSocket when CallHandler returns.
type CallHandler func(ctx context.Context, meta CallMeta, conn *MediaConn)

// Server is the carrier-facing HTTP server: the call-setup webhook, the
// media WebSocket endpoint, and process health checks (C1).
type Server struct {
	Registry        *tenant.Registry
	Metrics         *observe.Metrics
	SignatureSecret string
	SignatureHeader string
	StreamURL       string
	OnCall          CallHandler
	Health          *health.Handler

	router *chi.Mux
}

// NewServer builds a Server with all routes mounted.
func NewServer(registry *tenant.Registry, metrics *observe.Metrics, onCall CallHandler, opts ...ServerOption) *Server {
	s := &Server{
		Registry: registry,
		Metrics:  metrics,
		OnCall:   onCall,
		Health:   health.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServerOption configures optional Server fields at construction time.
type ServerOption func(*Server)

// WithSignature enables call-setup signature verification.
func WithSignature(header, secret string) ServerOption {
	return func(s *Server) {
		s.SignatureHeader = header
		s.SignatureSecret = secret
	}
}

// WithStreamURL sets the wss:// base URL returned in the streaming
// directive.
func WithStreamURL(url string) ServerOption {
	return func(s *Server) { s.StreamURL = url }
}

// WithHealth overrides the default health handler (e.g. with readiness
// checkers registered).
func WithHealth(h *health.Handler) ServerOption {
	return func(s *Server) { s.Health = h }
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if s.Metrics != nil {
		r.Use(observe.Middleware(s.Metrics))
	}

	r.Get("/healthz", s.Health.Healthz)
	r.Get("/readyz", s.Health.Readyz)

	r.Post("/voice", s.handleVoice)
	r.Get("/media", s.handleMedia)

	s.router = r
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	wh := &Webhook{
		Registry:        s.Registry,
		SignatureSecret: s.SignatureSecret,
		HeaderName:      s.SignatureHeader,
		StreamURL:       s.StreamURL,
	}
	wh.ServeHTTP(w, r)
}

func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("carrier: failed to accept media websocket", "err", err)
		return
	}

	ctx := r.Context()
	mc := newMediaConn(ctx, conn)

	meta, err := mc.awaitStart(ctx)
	if err != nil {
		slog.Warn("carrier: media stream closed before start event", "err", err)
		conn.Close(websocket.StatusPolicyViolation, "no start event")
		return
	}

	go mc.readLoop()

	slog.Info("carrier: media stream started", "call_id", meta.CallID, "business_id", meta.BusinessID, "stream_id", meta.StreamID)

	if s.OnCall != nil {
		s.OnCall(ctx, meta, mc)
	}

	conn.Close(websocket.StatusNormalClosure, "call ended")
}
