package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360studio/workbench/api"
	"github.com/c360studio/workbench/artefact"
	"github.com/c360studio/workbench/axis"
	"github.com/c360studio/workbench/config"
	"github.com/c360studio/workbench/definition"
	"github.com/c360studio/workbench/llm"
	"github.com/c360studio/workbench/metrics"
	"github.com/c360studio/workbench/model"
	"github.com/c360studio/workbench/resolution"
	"github.com/c360studio/workbench/storage"
	fieldvalidator "github.com/c360studio/workbench/validator"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS, nil for the memory store
	conn  *storage.Conn
	store storage.Store

	metrics  *metrics.Metrics
	registry *axis.Registry
	watcher  *axis.Watcher
	models   *model.Registry
	server   *api.Server

	httpServer *http.Server
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Start opens the store and builds the HTTP server. It does not listen.
func (a *App) Start(ctx context.Context) error {
	if err := a.startStore(ctx); err != nil {
		return fmt.Errorf("start store: %w", err)
	}
	if err := a.startCatalog(ctx); err != nil {
		a.Shutdown(time.Second)
		return fmt.Errorf("load catalog: %w", err)
	}
	if err := a.buildServer(); err != nil {
		a.Shutdown(time.Second)
		return err
	}
	a.httpServer = &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Info("Components initialized",
		"store", a.cfg.Store.Kind,
		"artefacts", a.cfg.Artefacts.BaseDir)
	return nil
}

func (a *App) startStore(ctx context.Context) error {
	if a.cfg.Store.Kind == config.StoreMemory {
		a.logger.Warn("Using in-memory store; nothing survives a restart")
		a.store = storage.NewMemoryStore()
		return nil
	}

	var err error
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		a.conn, err = storage.Connect(a.cfg.NATS.URL)
	} else {
		a.logger.Info("Starting embedded NATS server", "store_dir", a.cfg.NATS.StoreDir)
		a.conn, err = storage.StartEmbedded(a.cfg.NATS.StoreDir)
	}
	if err != nil {
		return err
	}

	store, err := storage.NewKVStore(ctx, a.conn.JS, storage.WithLogger(a.logger))
	if err != nil {
		a.conn.Close()
		a.conn = nil
		return err
	}
	a.store = store
	return nil
}

func (a *App) startCatalog(ctx context.Context) error {
	if a.cfg.Catalog.Path == "" {
		a.registry = axis.NewRegistry(axis.DefaultCatalog())
		return nil
	}
	catalog, err := axis.LoadCatalog(a.cfg.Catalog.Path)
	if err != nil {
		return err
	}
	a.registry = axis.NewRegistry(catalog)
	if !a.cfg.Catalog.Watch {
		return nil
	}
	w, err := axis.NewWatcher(a.cfg.Catalog.Path, a.registry, a.logger)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	a.watcher = w
	return nil
}

func (a *App) buildServer() error {
	cfg := a.cfg
	a.metrics = metrics.New()

	models, err := loadModels(cfg)
	if err != nil {
		return err
	}
	a.models = models
	client := llm.NewClient(models,
		llm.WithLogger(a.logger),
		llm.WithObserver(a.metrics.ObserveLLMCall),
		llm.WithRetryConfig(llm.RetryConfig{
			MaxAttempts:       cfg.ModelRetry.MaxAttempts,
			BackoffBase:       cfg.ModelRetry.BackoffBase,
			BackoffMultiplier: 2,
			MaxBackoff:        cfg.ModelRetry.MaxBackoff,
		}))

	vopts := []fieldvalidator.Option{
		fieldvalidator.WithTimeout(cfg.Validator.Timeout),
		fieldvalidator.WithFormatRetries(cfg.Validator.FormatRetries),
		fieldvalidator.WithLogger(a.logger),
		fieldvalidator.WithObserver(a.metrics.ObserveValidation),
	}
	genOpts := []llm.GeneratorOption{
		llm.WithTemperature(cfg.Validator.Temperature),
		llm.WithJSONObject(),
	}
	v := fieldvalidator.New(
		llm.NewClientGenerator(client, model.CapabilityValidating, genOpts...),
		vopts...)
	drafter := fieldvalidator.NewDrafter(
		llm.NewClientGenerator(client, model.CapabilityDrafting, genOpts...),
		vopts...)

	engine := definition.NewEngine(a.store, v,
		definition.WithLogger(a.logger),
		definition.WithTransitionObserver(a.metrics.ObserveTransition))

	mirror, err := artefact.NewMirror(cfg.Artefacts.BaseDir, cfg.Artefacts.AllowedRoots)
	if err != nil {
		return fmt.Errorf("create artefact mirror: %w", err)
	}
	artefacts := artefact.NewService(engine, a.store, a.store, mirror,
		artefact.WithLogger(a.logger),
		artefact.WithObserver(a.metrics.ObserveArtefact))

	orgDefaults := resolution.ParseOverrides(cfg.OrgDefaults)
	if len(orgDefaults.Ignored) > 0 {
		a.logger.Warn("Ignoring org defaults for unknown axes", "keys", orgDefaults.Ignored)
	}
	resolver := resolution.NewResolver(a.store, a.registry,
		resolution.WithOrgDefaults(orgDefaults),
		resolution.WithLogger(a.logger))

	a.server = api.NewServer(api.Deps{
		Directory: a.store,
		Engine:    engine,
		Artefacts: artefacts,
		Drafter:   drafter,
		Resolver:  resolver,
		Registry:  a.registry,
		Models:    models,
	},
		api.WithLogger(a.logger),
		api.WithMetrics(a.metrics),
		api.WithRateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	return nil
}

// loadModels builds the model registry from the configured file, or the
// built-in one, with the configured breaker settings.
func loadModels(cfg *config.Config) (*model.Registry, error) {
	models := model.NewDefaultRegistry()
	if cfg.ModelRegistry != "" {
		r, err := model.LoadFromFile(cfg.ModelRegistry)
		if err != nil {
			return nil, fmt.Errorf("load model registry: %w", err)
		}
		models = r
	}
	models.SetHealthConfig(model.HealthConfig{
		FailureThreshold: cfg.ModelHealth.FailureThreshold,
		RecoveryTimeout:  cfg.ModelHealth.RecoveryTimeout,
	})
	return models, nil
}

// Handler returns the HTTP handler built by Start.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run serves HTTP until ctx is cancelled, then shuts the server down within
// the configured timeout.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}
	a.logger.Info("Workbench ready", "version", Version, "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := a.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer cancel()
		return a.httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			a.logger.Warn("Stop catalog watcher", "error", err)
		}
		a.watcher = nil
	}
	if a.conn != nil {
		done := make(chan struct{})
		go func() {
			a.conn.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(timeout):
			a.logger.Warn("Timed out closing NATS", "timeout", timeout)
		}
		a.conn = nil
	}
}
