// Command interviewd is the AI interview session server.
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

	"golang.org/x/sync/errgroup"

	"github.com/hireorbit/interviewd/internal/config"
	"github.com/hireorbit/interviewd/internal/gateway"
	"github.com/hireorbit/interviewd/internal/health"
	"github.com/hireorbit/interviewd/internal/interview"
	"github.com/hireorbit/interviewd/internal/interview/postgres"
	"github.com/hireorbit/interviewd/internal/observe"
	"github.com/hireorbit/interviewd/internal/resilience"
	"github.com/hireorbit/interviewd/internal/rooms"
	"github.com/hireorbit/interviewd/internal/session"
	"github.com/hireorbit/interviewd/pkg/provider/llm"
	"github.com/hireorbit/interviewd/pkg/provider/stt"
	"github.com/hireorbit/interviewd/pkg/provider/tts"
)

// version is overridden at build time via -ldflags.
var version = "dev"

const defaultListenAddr = ":8080"

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
			fmt.Fprintf(os.Stderr, "interviewd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "interviewd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("interviewd starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "interviewd",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Transcript store ──────────────────────────────────────────────────────
	closingPhrase := cfg.Interview.ClosingPhrase
	if closingPhrase == "" {
		closingPhrase = interview.DefaultClosingPhrase
	}

	var (
		store       interview.Store
		readyChecks []health.Checker
	)
	if dsn := cfg.Database.PostgresDSN; dsn != "" {
		pgStore, err := postgres.NewStore(ctx, dsn, closingPhrase)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pgStore.Close()
		store = pgStore
		readyChecks = append(readyChecks, health.Database(pgStore))
		slog.Info("transcript store ready", "backend", "postgres")
	} else {
		store = interview.NewMemStore(closingPhrase)
		slog.Warn("transcript store ready", "backend", "memory")
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.DefaultRegistry()

	breakerCfg := resilience.CircuitBreakerConfig{
		MaxFailures:  cfg.Resilience.MaxFailures,
		ResetTimeout: cfg.Resilience.ResetTimeout.Std(),
		HalfOpenMax:  cfg.Resilience.HalfOpenMax,
	}

	completer, err := buildCompleter(reg, cfg, breakerCfg)
	if err != nil {
		slog.Error("failed to create llm provider", "err", err)
		return 1
	}

	transcriber, err := buildTranscriber(reg, cfg, breakerCfg)
	if err != nil {
		slog.Error("failed to create stt provider", "err", err)
		return 1
	}

	synthesizer, err := buildSynthesizer(reg, cfg, breakerCfg)
	if err != nil {
		slog.Error("failed to create tts provider", "err", err)
		return 1
	}

	// ── Interview service ─────────────────────────────────────────────────────
	svcOpts := []session.Option{
		session.WithAdminSecret(cfg.Interview.AdminSecret),
		session.WithTemperature(cfg.Interview.Temperature),
		session.WithMaxTokens(cfg.Interview.MaxTokens),
	}
	if transcriber != nil {
		svcOpts = append(svcOpts, session.WithTranscriber(transcriber))
	}
	if synthesizer != nil {
		svcOpts = append(svcOpts, session.WithSynthesizer(synthesizer))
	}
	svc := session.New(store, completer, svcOpts...)

	// ── HTTP gateway ──────────────────────────────────────────────────────────
	agg := rooms.NewAggregator(cfg.Rooms.MaxIdle.Std())
	gw := gateway.New(svc,
		gateway.WithAggregator(agg),
		gateway.WithHealth(health.New(readyChecks...)),
	)

	httpServer := &http.Server{
		Addr:              listenAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpServer.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		gw.RunSweeper(gctx, cfg.Rooms.SweepInterval.Std())
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	slog.Info("server ready — press Ctrl+C to shut down", "addr", listenAddr)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newLogger builds the process-wide slog logger for the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildCompleter creates the completion provider, wrapping it in a failover
// group when fallbacks are configured.
func buildCompleter(reg *config.Registry, cfg *config.Config, cbCfg resilience.CircuitBreakerConfig) (llm.Provider, error) {
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if len(cfg.Providers.LLMFallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, cbCfg)
	for _, entry := range cfg.Providers.LLMFallbacks {
		p, err := reg.CreateLLM(entry)
		if err != nil {
			return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, p)
		slog.Info("fallback registered", "kind", "llm", "name", entry.Name)
	}
	return group, nil
}

// buildTranscriber creates the optional transcription provider plus fallbacks.
func buildTranscriber(reg *config.Registry, cfg *config.Config, cbCfg resilience.CircuitBreakerConfig) (stt.Provider, error) {
	if cfg.Providers.STT.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateSTT(cfg.Providers.STT)
	if err != nil {
		return nil, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)

	if len(cfg.Providers.STTFallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewSTTFallback(primary, cfg.Providers.STT.Name, cbCfg)
	for _, entry := range cfg.Providers.STTFallbacks {
		p, err := reg.CreateSTT(entry)
		if err != nil {
			return nil, fmt.Errorf("create stt fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, p)
		slog.Info("fallback registered", "kind", "stt", "name", entry.Name)
	}
	return group, nil
}

// buildSynthesizer creates the optional synthesis provider plus fallbacks.
func buildSynthesizer(reg *config.Registry, cfg *config.Config, cbCfg resilience.CircuitBreakerConfig) (tts.Provider, error) {
	if cfg.Providers.TTS.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if len(cfg.Providers.TTSFallbacks) == 0 {
		return primary, nil
	}

	group := resilience.NewTTSFallback(primary, cfg.Providers.TTS.Name, cbCfg)
	for _, entry := range cfg.Providers.TTSFallbacks {
		p, err := reg.CreateTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts fallback %q: %w", entry.Name, err)
		}
		group.AddFallback(entry.Name, p)
		slog.Info("fallback registered", "kind", "tts", "name", entry.Name)
	}
	return group, nil
}
