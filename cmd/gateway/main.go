// Command gateway is the main entry point for the voice gateway server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relaycall/voicegateway/internal/app"
	"github.com/relaycall/voicegateway/internal/carrier"
	"github.com/relaycall/voicegateway/internal/config"
	"github.com/relaycall/voicegateway/internal/observe"
	"github.com/relaycall/voicegateway/internal/tenant"
	"github.com/relaycall/voicegateway/pkg/embeddings"
	embeddingsopenai "github.com/relaycall/voicegateway/pkg/embeddings/openai"
	"github.com/relaycall/voicegateway/pkg/llm"
	llmopenai "github.com/relaycall/voicegateway/pkg/llm/openai"
	"github.com/relaycall/voicegateway/pkg/realtime"
	realtimeopenai "github.com/relaycall/voicegateway/pkg/realtime/openai"
	"github.com/relaycall/voicegateway/pkg/retrieval"
	"github.com/relaycall/voicegateway/pkg/retrieval/pgstore"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "gateway: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("gateway starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voicegateway"})
	if err != nil {
		slog.Error("failed to initialise observability providers", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("observability shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	registry := tenant.NewRegistry()
	if err := registry.Load(cfg.Tenant.RegistryPath); err != nil {
		slog.Error("failed to load tenant registry", "path", cfg.Tenant.RegistryPath, "err", err)
		return 1
	}
	watcher := tenant.NewWatcher(registry, tenant.WithInterval(cfg.Tenant.ReloadInterval))
	defer watcher.Stop()

	reg := buildProviderRegistry()
	providers, err := buildProviders(ctx, cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(cfg, registry, providers, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	srv := carrier.NewServer(registry, metrics, application.HandleCall,
		carrier.WithSignature("X-Twilio-Signature", cfg.Server.SignatureSecret),
		carrier.WithStreamURL(cfg.Server.PublicStreamURL),
	)

	httpSrv := &http.Server{
		Addr:    cfg.Server.ListenAddr,
		Handler: srv,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server ready — listening", "addr", cfg.Server.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "err", err)
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("app shutdown error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// buildProviderRegistry registers every built-in provider factory keyed by
// the name a config.yaml entry can select.
func buildProviderRegistry() *config.Registry {
	reg := config.NewRegistry()

	reg.RegisterRealtime("openai", func(e config.ProviderEntry) (realtime.Provider, error) {
		if e.APIKey == "" {
			return nil, fmt.Errorf("providers.realtime: api_key is required")
		}
		opts := []realtimeopenai.Option{}
		if e.BaseURL != "" {
			opts = append(opts, realtimeopenai.WithBaseURL(e.BaseURL))
		}
		return realtimeopenai.New(e.APIKey, e.Model, opts...), nil
	})

	reg.RegisterLLM("openai", func(e config.ProviderEntry) (llm.Provider, error) {
		if e.APIKey == "" {
			return nil, fmt.Errorf("providers.llm: api_key is required")
		}
		return llmopenai.New(e.APIKey, e.Model)
	})

	reg.RegisterEmbeddings("openai", func(e config.ProviderEntry) (embeddings.Provider, error) {
		if e.APIKey == "" {
			return nil, fmt.Errorf("providers.embeddings: api_key is required")
		}
		return embeddingsopenai.New(e.APIKey, e.Model)
	})

	return reg
}

// buildProviders instantiates every configured provider and the retrieval
// store, returning them bundled for [app.New].
func buildProviders(ctx context.Context, cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	realtimeProvider, err := reg.CreateRealtime(cfg.Providers.Realtime)
	if err != nil {
		return nil, fmt.Errorf("create realtime provider %q: %w", cfg.Providers.Realtime.Name, err)
	}
	ps.Realtime = realtimeProvider
	slog.Info("provider created", "kind", "realtime", "name", cfg.Providers.Realtime.Name)

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = p
		slog.Info("provider created", "kind", "llm", "name", name)
	}

	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = p
		slog.Info("provider created", "kind", "embeddings", "name", name)

		if cfg.Retrieval.PostgresDSN != "" {
			store, err := buildRetrieval(ctx, cfg.Retrieval)
			if err != nil {
				return nil, fmt.Errorf("create retrieval store: %w", err)
			}
			ps.Retrieval = store
			slog.Info("provider created", "kind", "retrieval", "name", "pgstore")
		}
	}

	return ps, nil
}

func buildRetrieval(ctx context.Context, cfg config.RetrievalConfig) (retrieval.Provider, error) {
	dims := cfg.EmbeddingDimensions
	if dims <= 0 {
		dims = 1536
	}
	return pgstore.New(ctx, cfg.PostgresDSN, dims)
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
