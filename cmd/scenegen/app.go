package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/scenegen/internal/config"
	"github.com/danielpatrickdp/scenegen/internal/logging"
	"github.com/danielpatrickdp/scenegen/internal/oracle"
	"github.com/danielpatrickdp/scenegen/internal/orchestrator"
	"github.com/danielpatrickdp/scenegen/internal/pipeline"
	"github.com/danielpatrickdp/scenegen/internal/script"
	"github.com/danielpatrickdp/scenegen/internal/state"
)

// #region app

// app is everything one command invocation shares.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	store  *state.Store
	orch   *orchestrator.Orchestrator
	router oracle.Router
	run    state.RunRecord

	closers []func() error
}

// setup loads the config and opens the store, oracle backends and run row.
func setup(ctx context.Context, command string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create out dir: %w", err)
	}
	a.store, err = state.NewStore(cfg.DB)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	// Workers share one connection so SQLite never sees concurrent writers.
	a.store.DB().SetMaxOpenConns(1)

	a.orch, err = orchestrator.NewOrchestrator(a.store.DB(), cfg.OrchestratorBounds(), logger)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	if a.router, err = a.buildRouter(ctx); err != nil {
		return nil, err
	}

	cfgJSON, err := json.Marshal(redacted(cfg))
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if a.run, err = a.store.BeginRun(command, "", string(cfgJSON)); err != nil {
		return nil, err
	}
	a.logger = logger.With(zap.String("run_id", a.run.RunID))
	if metricsAddr != "" {
		a.serveMetrics()
	}
	ok = true
	return a, nil
}

// finish records the run outcome and releases everything setup opened.
func (a *app) finish(runErr error, summary any) error {
	status := state.RunFinished
	if runErr != nil {
		status = state.RunFailed
	}
	summaryJSON := ""
	if summary != nil {
		if b, err := json.Marshal(summary); err == nil {
			summaryJSON = string(b)
		}
	}
	if err := a.store.FinishRun(a.run.RunID, status, summaryJSON); err != nil {
		a.logger.Error("finish run", zap.Error(err))
	}
	a.logger.Info("run finished", zap.String("status", string(status)))
	a.close()
	return runErr
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}

func (a *app) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: metricsAddr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, srv.Close)
	a.logger.Info("serving metrics", zap.String("addr", metricsAddr))
}

// pipelineOptions maps the config onto one worker's pipeline settings.
func (a *app) pipelineOptions() (pipeline.Options, error) {
	opts := pipeline.Options{
		ParseBound:  a.cfg.ParseBound,
		SyntaxCheck: a.cfg.Script.SyntaxCheck,
		Range:       a.cfg.Placement.Range,
	}
	if a.cfg.Script.GuidanceDir != "" {
		g, err := script.LoadGuidanceDir(a.cfg.Script.GuidanceDir)
		if err != nil {
			return opts, fmt.Errorf("load guidance: %w", err)
		}
		opts.Guidance = g
	}
	return opts, nil
}

// redacted drops the API key before the config is stored with the run.
func redacted(cfg config.Config) config.Config {
	if cfg.Oracle.APIKey != "" {
		cfg.Oracle.APIKey = "***"
	}
	return cfg
}

// #endregion app

// #region router

// buildRouter creates the default oracle and one oracle per overridden
// stage. Backends are shared between stages that resolve to the same
// endpoint.
func (a *app) buildRouter(ctx context.Context) (oracle.Router, error) {
	oc := a.cfg.Oracle
	backends := map[string]oracle.Backend{}

	backendFor := func(kind, baseURL string) (oracle.Backend, error) {
		key := kind + "|" + baseURL
		if b, ok := backends[key]; ok {
			return b, nil
		}
		var b oracle.Backend
		switch kind {
		case "openai":
			apiKey := oc.APIKey
			if oc.Backend != "openai" {
				apiKey = os.Getenv("OPENAI_API_KEY")
			}
			b = oracle.NewOpenAIBackend(baseURL, apiKey, oc.Temperature)
		case "gemini":
			apiKey := oc.APIKey
			if oc.Backend != "gemini" {
				apiKey = os.Getenv("GEMINI_API_KEY")
			}
			gb, err := oracle.NewGeminiBackend(ctx, apiKey)
			if err != nil {
				return nil, err
			}
			b = gb
		case "grpc":
			gb, err := oracle.NewGRPCBackend(oc.Addr)
			if err != nil {
				return nil, err
			}
			a.closers = append(a.closers, gb.Close)
			b = gb
		default:
			return nil, fmt.Errorf("unknown oracle backend %q", kind)
		}
		backends[key] = b
		return b, nil
	}

	clientOpts := []oracle.Option{
		oracle.WithAttempts(oc.Attempts),
		oracle.WithRateLimit(oc.RatePerSecond, oc.Burst),
		oracle.WithLogger(a.logger),
	}

	def, err := backendFor(oc.Backend, oc.BaseURL)
	if err != nil {
		return oracle.Router{}, fmt.Errorf("default oracle: %w", err)
	}
	router := oracle.Router{
		Default: oracle.NewClient(def, oc.Model, clientOpts...),
		Stages:  map[string]oracle.Oracle{},
	}
	for stage, so := range oc.Stages {
		kind := so.Backend
		if kind == "" {
			kind = oc.Backend
		}
		baseURL := so.BaseURL
		if baseURL == "" {
			baseURL = oc.BaseURL
		}
		model := so.Model
		if model == "" {
			model = oc.Model
		}
		b, err := backendFor(kind, baseURL)
		if err != nil {
			return oracle.Router{}, fmt.Errorf("oracle for %s: %w", stage, err)
		}
		router.Stages[stage] = oracle.NewClient(b, model, clientOpts...)
		a.logger.Debug("stage oracle", zap.String("stage", stage), zap.String("backend", kind), zap.String("model", model))
	}
	return router, nil
}

// #endregion router
