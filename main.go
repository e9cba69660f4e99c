package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/zhiruiluo/esi-triage-mvp/internal/admission"
	"github.com/zhiruiluo/esi-triage-mvp/internal/config"
	"github.com/zhiruiluo/esi-triage-mvp/internal/core"
	"github.com/zhiruiluo/esi-triage-mvp/internal/evidence"
	"github.com/zhiruiluo/esi-triage-mvp/internal/llm"
	"github.com/zhiruiluo/esi-triage-mvp/internal/pipeline"
	"github.com/zhiruiluo/esi-triage-mvp/internal/router"
	"github.com/zhiruiluo/esi-triage-mvp/internal/security"
	"github.com/zhiruiluo/esi-triage-mvp/internal/server"
	"github.com/zhiruiluo/esi-triage-mvp/internal/triage"
	logx "github.com/zhiruiluo/esi-triage-mvp/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load .env for local runs; absence is fine in deployed environments.
	_ = godotenv.Load(".env")

	var cfg config.AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		logx.Fatal().Err(err).Msg("failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{Environment: core.ParseEnvironment(cfg.Environment)})

	// Without a credential the service still answers, degraded, so model
	// setup failures are warnings rather than fatal.
	var completer llm.Completer
	client, err := llm.NewGeminiClient(ctx, cfg.APIKey, cfg.BaseURL, cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoCredential):
		logx.Warn().Msg("GEMINI_API_KEY not set, running in degraded mode")
	case err != nil:
		logx.Fatal().Err(err).Msg("failed to initialise model client")
	default:
		completer = client
	}

	var store admission.Store = admission.NewMemoryStore()
	if cfg.Quota.Store == "redis" {
		rdb, err := cfg.Redis.New()
		if err != nil {
			logx.Fatal().Err(err).Msg("failed to initialise redis client")
		}
		defer rdb.Close()
		store = admission.NewRedisStore(rdb)
		logx.Info().Msg("quota ledger backed by redis")
	}

	modelRouter := router.New(cfg.Router, cfg.LLM.Model)
	retriever := evidence.NewRetriever(evidence.NewStore())
	gate := security.NewGate(security.NewSemanticDetector(completer, cfg.Router.DefaultModel))
	pl := pipeline.New(completer, retriever, modelRouter, cfg.ResourceModelEnabled)

	svc := triage.NewService(
		admission.NewController(store, cfg.Quota, nil),
		gate,
		config.NewLayerManager(cfg.LayerConfigPath),
		pl,
	)

	if err := server.New(&cfg, svc).Start(ctx); err != nil {
		logx.Fatal().Err(err).Msg("http server failed")
	}
}
