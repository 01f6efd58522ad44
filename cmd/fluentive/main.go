// Command fluentive is the spoken-answer evaluation and feedback server.
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

	"github.com/jackc/pgx/v5/pgxpool"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/fluentive/fluentive/internal/auth"
	"github.com/fluentive/fluentive/internal/config"
	"github.com/fluentive/fluentive/internal/evaluate"
	"github.com/fluentive/fluentive/internal/feedback"
	"github.com/fluentive/fluentive/internal/grammar"
	"github.com/fluentive/fluentive/internal/health"
	"github.com/fluentive/fluentive/internal/observe"
	"github.com/fluentive/fluentive/internal/semantic"
	"github.com/fluentive/fluentive/internal/server"
	"github.com/fluentive/fluentive/internal/session"
	"github.com/fluentive/fluentive/internal/store"
	"github.com/fluentive/fluentive/internal/synthesis"
	"github.com/fluentive/fluentive/internal/transcript"
	"github.com/fluentive/fluentive/pkg/provider/embeddings"
	ollamaembed "github.com/fluentive/fluentive/pkg/provider/embeddings/ollama"
	oaembed "github.com/fluentive/fluentive/pkg/provider/embeddings/openai"
	"github.com/fluentive/fluentive/pkg/provider/llm"
	"github.com/fluentive/fluentive/pkg/provider/llm/anyllm"
	oallm "github.com/fluentive/fluentive/pkg/provider/llm/openai"
	"github.com/fluentive/fluentive/pkg/provider/stt"
	"github.com/fluentive/fluentive/pkg/provider/stt/whisper"
	"github.com/fluentive/fluentive/pkg/provider/tts"
	"github.com/fluentive/fluentive/pkg/provider/tts/coqui"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "fluentive: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "fluentive: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("fluentive starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"mode", cfg.Evaluation.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, "fluentive")
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Store ─────────────────────────────────────────────────────────────────
	st, pool, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialise store", "err", err)
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}
	if cfg.Evaluation.Mode == config.ModeForced && providers.LLM == nil {
		slog.Error("forced mode requires a configured llm provider")
		return 1
	}

	// ── Evaluation pipeline ───────────────────────────────────────────────────
	var resolverOpts []transcript.Option
	if cfg.Speech.FFmpegPath != "" {
		resolverOpts = append(resolverOpts, transcript.WithFFmpeg(cfg.Speech.FFmpegPath))
	}
	resolver := transcript.NewResolver(providers.STT, resolverOpts...)

	var synthOpts []synthesis.Option
	if cfg.Speech.Voice != "" {
		synthOpts = append(synthOpts, synthesis.WithVoice(cfg.Speech.Voice))
	}
	if cfg.Speech.LipSyncPath != "" {
		synthOpts = append(synthOpts, synthesis.WithLipSync(synthesis.NewLipSyncRunner(cfg.Speech.LipSyncPath)))
	}
	synth := synthesis.New(providers.TTS, synthOpts...)

	pipelineOpts := []evaluate.Option{
		evaluate.WithMetrics(metrics),
		evaluate.WithSynthesizer(synth),
	}
	if cfg.Evaluation.Fast {
		pipelineOpts = append(pipelineOpts, evaluate.WithFastMode())
	}
	if cfg.Evaluation.Mode == config.ModeStatic {
		pipelineOpts = append(pipelineOpts, evaluate.WithStaticScores(store.Scores{
			Grammar:       cfg.Evaluation.StaticScores.Grammar,
			Fluency:       cfg.Evaluation.StaticScores.Fluency,
			Semantic:      cfg.Evaluation.StaticScores.Semantic,
			Pronunciation: cfg.Evaluation.StaticScores.Pronunciation,
		}))
	}

	pipeline := evaluate.New(
		resolver,
		buildChain(cfg, providers.LLM),
		semantic.NewScorer(providers.Embeddings),
		pipelineOpts...,
	)

	// ── Services ──────────────────────────────────────────────────────────────
	authSvc := auth.NewService(st, []byte(cfg.Auth.JWTSecret))
	sessions := session.NewService(st, feedback.NewNarrator(providers.LLM))

	checks := buildHealth(pool, providers.TTS)

	serverOpts := []server.Option{
		server.WithSynthesizer(synth),
		server.WithMetrics(metrics),
		server.WithHealth(checks),
		server.WithLogger(logger),
	}
	if cfg.Evaluation.DisableSpeech {
		serverOpts = append(serverOpts, server.WithSpeechDisabled())
	}
	api := server.New(authSvc, sessions, pipeline, serverOpts...)
	defer api.Close()

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", cfg.Server.ListenAddr)
		if cfg.Server.TLS != nil {
			errCh <- httpServer.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			errCh <- httpServer.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received, stopping…")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Store wiring ──────────────────────────────────────────────────────────────

// buildStore selects Postgres when a DSN is configured and the in-memory
// store otherwise. The returned pool is nil for the memory store.
func buildStore(ctx context.Context, cfg *config.Config) (store.Store, *pgxpool.Pool, error) {
	if cfg.Database.DSN == "" {
		slog.Warn("no database configured — using in-memory store, data is lost on restart")
		return store.NewMemory(), nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	pg := store.NewPostgres(pool)
	if err := pg.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate postgres: %w", err)
	}
	slog.Info("postgres store ready")
	return pg, pool, nil
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// providerSet holds the instantiated external providers. Any of them may be
// nil, in which case the corresponding stage degrades to its fallback.
type providerSet struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider
	STT        stt.Transcriber
	TTS        tts.Engine
}

// registerBuiltinProviders wires the shipped provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// gemini, anthropic, mistral and groq go through the any-llm gateway and
	// share the APIKey + BaseURL pattern.
	for _, providerName := range []string{"gemini", "anthropic", "mistral", "groq"} {
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

	// openai uses the native SDK client.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oallm.WithTimeout(entry.Timeout.Std()))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if entry.Timeout > 0 {
			opts = append(opts, oaembed.WithTimeout(entry.Timeout.Std()))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if entry.Timeout > 0 {
			opts = append(opts, ollamaembed.WithTimeout(entry.Timeout.Std()))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if entry.Timeout > 0 {
			opts = append(opts, whisper.WithTimeout(entry.Timeout.Std()))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Transcriber, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		var opts []whisper.NativeOption
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterTTS("coqui", func(entry config.ProviderEntry) (tts.Engine, error) {
		var opts []coqui.Option
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, coqui.WithLanguage(lang))
		}
		if entry.Timeout > 0 {
			opts = append(opts, coqui.WithTimeout(entry.Timeout.Std()))
		}
		return coqui.New(entry.BaseURL, opts...)
	})
}

// buildProviders instantiates every provider named in cfg. Each created
// provider is wrapped with request/error metrics under its configured name.
func buildProviders(cfg *config.Config, reg *config.Registry, metrics *observe.Metrics) (*providerSet, error) {
	ps := &providerSet{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		}
		ps.LLM = observe.InstrumentLLM(name, p, metrics)
		slog.Info("provider created", "kind", "llm", "name", name)
	}
	if name := cfg.Providers.Embeddings.Name; name != "" {
		p, err := reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			return nil, fmt.Errorf("create embeddings provider %q: %w", name, err)
		}
		ps.Embeddings = observe.InstrumentEmbeddings(name, p, metrics)
		slog.Info("provider created", "kind", "embeddings", "name", name)
	}
	if name := cfg.Providers.STT.Name; name != "" {
		p, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = observe.InstrumentTranscriber(name, p, metrics)
		slog.Info("provider created", "kind", "stt", "name", name)
	}
	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", name, err)
		}
		ps.TTS = observe.InstrumentTTS(name, p, metrics)
		slog.Info("provider created", "kind", "tts", "name", name)
	}
	return ps, nil
}

// buildChain assembles the grammar correction tiers for the configured mode.
// The deterministic rule tier always terminates the chain so a correction is
// produced even with every backend down.
func buildChain(cfg *config.Config, llmProvider llm.Provider) *grammar.Chain {
	var strategies []grammar.Strategy

	switch cfg.Evaluation.Mode {
	case config.ModeStatic:
		// Scores come from the pipeline's static path; the chain is not
		// consulted, but keep it well-formed.
		return grammar.NewChain(grammar.NewStaticStrategy())
	case config.ModeRules:
		return grammar.NewChain(grammar.NewRuleStrategy())
	case config.ModeLocal:
		// Chain starts at the local tier.
	default:
		// llm and forced start at the cloud tier.
		if llmProvider != nil {
			var opts []grammar.LLMOption
			if cfg.Providers.LLM.Timeout > 0 {
				opts = append(opts, grammar.WithLLMTimeout(cfg.Providers.LLM.Timeout.Std()))
			}
			strategies = append(strategies, grammar.NewLLMStrategy(llmProvider, opts...))
		}
	}

	if cfg.LocalModel.Model != "" {
		var opts []grammar.LocalOption
		if cfg.LocalModel.Timeout > 0 {
			opts = append(opts, grammar.WithLocalTimeout(cfg.LocalModel.Timeout.Std()))
		}
		strategies = append(strategies, grammar.NewLocalStrategy(cfg.LocalModel.BaseURL, cfg.LocalModel.Model, opts...))
	}

	strategies = append(strategies, grammar.NewRuleStrategy())
	return grammar.NewChain(strategies...)
}

// buildHealth wires readiness checks for the dependencies that can actually
// fail: the database pool and the TTS engine's voice listing.
func buildHealth(pool *pgxpool.Pool, engine tts.Engine) *health.Handler {
	var checkers []health.Checker
	if pool != nil {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: pool.Ping,
		})
	}
	if engine != nil {
		checkers = append(checkers, health.Checker{
			Name: "tts",
			Check: func(ctx context.Context) error {
				_, err := engine.Voices(ctx)
				return err
			},
		})
	}
	return health.New(checkers...)
}

// ── Logger ────────────────────────────────────────────────────────────────────

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

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	s, _ := opts[key].(string)
	return s
}
