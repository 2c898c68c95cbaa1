// Command phraseloop is the main entry point for the Phraseloop practice
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"golang.org/x/sync/errgroup"

	"github.com/phraseloop/phraseloop/internal/config"
	"github.com/phraseloop/phraseloop/internal/dialogue"
	"github.com/phraseloop/phraseloop/internal/engine"
	"github.com/phraseloop/phraseloop/internal/expression"
	"github.com/phraseloop/phraseloop/internal/health"
	"github.com/phraseloop/phraseloop/internal/httpapi"
	"github.com/phraseloop/phraseloop/internal/observe"
	"github.com/phraseloop/phraseloop/internal/session"
	"github.com/phraseloop/phraseloop/internal/similarity"
	"github.com/phraseloop/phraseloop/pkg/provider/llm"
	"github.com/phraseloop/phraseloop/pkg/provider/llm/anyllm"
)

// version is stamped by the build; "dev" for local builds.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "phraseloop: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "phraseloop: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("phraseloop starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "phraseloop",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// DefaultMetrics uses the global meter provider registered above.
	metrics := observe.DefaultMetrics()

	// ── LLM provider / dialogue generator ─────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	generator, err := buildGenerator(cfg, reg)
	if err != nil {
		slog.Error("failed to build dialogue generator", "err", err)
		return 1
	}

	// ── Expression store ──────────────────────────────────────────────────────
	exprStore, closeStore, err := buildExpressionStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise expression store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Engine ────────────────────────────────────────────────────────────────
	scorerOpts := []similarity.Option{}
	if cfg.Practice.MinTokenLength != 0 {
		scorerOpts = append(scorerOpts, similarity.WithMinTokenLength(cfg.Practice.MinTokenLength))
	}
	hinterOpts := []similarity.HintOption{}
	if cfg.Practice.HintThreshold != 0 {
		hinterOpts = append(hinterOpts, similarity.WithHintThreshold(cfg.Practice.HintThreshold))
	}

	eng, err := engine.New(engine.Config{
		Sessions:         session.NewMemStore(),
		Expressions:      exprStore,
		Generator:        generator,
		Scorer:           similarity.New(scorerOpts...),
		Hinter:           similarity.NewHinter(hinterOpts...),
		Rand:             mathrand.New(mathrand.NewPCG(mathrand.Uint64(), mathrand.Uint64())),
		CorrectThreshold: cfg.Practice.CorrectThreshold,
		CloseThreshold:   cfg.Practice.CloseThreshold,
		Metrics:          metrics,
	})
	if err != nil {
		slog.Error("failed to build engine", "err", err)
		return 1
	}

	// ── Config hot reload (log level and practice tuning warnings) ───────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PracticeChanged {
			slog.Warn("practice tuning changed on disk; new values apply after restart")
		}
		if d.RestartRequired {
			slog.Warn("config change requires a restart to take effect")
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	checkers := []health.Checker{}
	if pg, ok := exprStore.(*expression.PostgresStore); ok {
		checkers = append(checkers, health.Checker{
			Name: "database",
			Check: func(ctx context.Context) error {
				_, err := pg.List(ctx, "healthcheck")
				return err
			},
		})
	}

	api := httpapi.New(eng, exprStore, health.New(checkers...), metrics)

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		var err error
		if cfg.Server.TLS != nil {
			err = srv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in LLM provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// openai, anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile
	// all share the same pattern: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})
}

// buildGenerator creates the dialogue generator from the configured LLM
// provider, wrapped with static-scenario degradation. When no provider is
// configured the engine falls back to static scenes on its own.
func buildGenerator(cfg *config.Config, reg *config.Registry) (dialogue.Generator, error) {
	name := cfg.Providers.LLM.Name
	if name == "" {
		return nil, nil
	}

	p, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", name, "model", cfg.Providers.LLM.Model)

	var opts []dialogue.LLMOption
	if cfg.Practice.ScenarioTemperature != 0 {
		opts = append(opts, dialogue.WithTemperature(cfg.Practice.ScenarioTemperature))
	}
	if cfg.Practice.ScenarioMaxTokens != 0 {
		opts = append(opts, dialogue.WithMaxTokens(cfg.Practice.ScenarioMaxTokens))
	}
	return dialogue.NewFallbackGenerator(dialogue.NewLLMGenerator(p, opts...)), nil
}

// buildExpressionStore connects to Postgres when a DSN is configured and
// falls back to the in-memory store otherwise. The returned func releases the
// connection pool.
func buildExpressionStore(ctx context.Context, cfg *config.Config) (expression.Store, func(), error) {
	dsn := cfg.Database.PostgresDSN
	if dsn == "" {
		slog.Info("using in-memory expression store")
		return expression.NewMemStore(), func() {}, nil
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := expression.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	slog.Info("using postgres expression store")
	return store, pool.Close, nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
