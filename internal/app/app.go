package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vk/stdattr/internal/activation"
	"github.com/vk/stdattr/internal/compiler"
	"github.com/vk/stdattr/internal/convention"
	"github.com/vk/stdattr/internal/ctxlog"
	"github.com/vk/stdattr/internal/metrics"
	"github.com/vk/stdattr/internal/pipeline"
	"github.com/vk/stdattr/internal/tree"
	"github.com/vk/stdattr/internal/validator"
	"github.com/vk/stdattr/internal/watcher"
)

// App encapsulates the engine's dependencies, configuration, and lifecycle.
type App struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *Config
	logger *slog.Logger

	metricsRegistry *prometheus.Registry
	metrics         *metrics.Metrics
	library         *validator.Library
	registry        *convention.Registry
	compiler        *compiler.Compiler
	manager         *activation.Manager
	pipeline        *pipeline.Pipeline

	watcher   *watcher.Watcher
	watchDone chan error
}

// New is the constructor for the engine. It builds an isolated logger and
// metrics registry, loads cached conventions, compiles the configured spec
// paths, and activates the configured convention.
func New(outW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg, outW)
	ctx, cancel := context.WithCancel(ctxlog.WithLogger(context.Background(), logger))
	logger.Debug("Logger configured successfully.")

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	lib := validator.NewLibrary(validator.WithReachabilityTimeout(cfg.ReachabilityTimeout))
	conventions := convention.NewRegistry()

	var compOpts []compiler.Option
	compOpts = append(compOpts, compiler.WithMetrics(m))
	if cfg.CacheDir != "" {
		compOpts = append(compOpts, compiler.WithCacheDir(cfg.CacheDir))
	}
	comp := compiler.New(lib, conventions, compOpts...)

	manager := activation.NewManager(conventions, activation.WithMetrics(m))
	if err := tree.RegisterOperations(manager); err != nil {
		cancel()
		return nil, err
	}

	a := &App{
		ctx:             ctx,
		cancel:          cancel,
		config:          cfg,
		logger:          logger,
		metricsRegistry: reg,
		metrics:         m,
		library:         lib,
		registry:        conventions,
		compiler:        comp,
		manager:         manager,
		pipeline:        pipeline.New(manager, pipeline.WithMetrics(m), pipeline.WithIgnoreErrors(cfg.IgnoreAttributeErrors)),
	}

	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	if a.config.CacheDir != "" {
		loaded, err := a.compiler.LoadAllCached(a.ctx)
		if err != nil {
			return err
		}
		a.logger.Debug("Cached conventions loaded.", "count", len(loaded))
	}

	for _, path := range a.config.SpecPaths {
		if err := a.compilePath(path); err != nil {
			return err
		}
	}

	if a.config.ActiveConvention != "" {
		if err := a.manager.Use(a.ctx, a.config.ActiveConvention); err != nil {
			return fmt.Errorf("failed to activate configured convention: %w", err)
		}
	}

	if a.config.Watch {
		if err := a.startWatcher(); err != nil {
			return err
		}
	}
	a.logger.Info("Engine initialised.", "conventions", a.registry.Names())
	return nil
}

func (a *App) compilePath(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("spec path %s: %w", path, err)
	}
	if info.IsDir() {
		_, err = a.compiler.CompileDir(a.ctx, path, a.config.SpecPattern, compiler.Options{})
	} else {
		_, err = a.compiler.CompileFile(a.ctx, path, compiler.Options{})
	}
	return err
}

func (a *App) startWatcher() error {
	w, err := watcher.New(a.compiler, a.manager)
	if err != nil {
		return err
	}
	for _, path := range a.config.SpecPaths {
		info, err := os.Stat(path)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := w.Add(path); err != nil {
			w.Close()
			return err
		}
	}
	a.watcher = w
	a.watchDone = make(chan error, 1)
	go func() { a.watchDone <- w.Run(a.ctx) }()
	return nil
}

// Close stops the watcher and releases the app's context.
func (a *App) Close() error {
	a.cancel()
	if a.watcher == nil {
		return nil
	}
	err := a.watcher.Close()
	if runErr := <-a.watchDone; runErr != nil && !errors.Is(runErr, context.Canceled) {
		err = errors.Join(err, runErr)
	}
	a.watcher = nil
	a.logger.Debug("Spec watcher stopped.")
	return err
}

// Context returns the app's context, carrying its logger.
func (a *App) Context() context.Context { return a.ctx }

func (a *App) Config() *Config { return a.config }

func (a *App) Registry() *convention.Registry { return a.registry }

func (a *App) Library() *validator.Library { return a.library }

func (a *App) Compiler() *compiler.Compiler { return a.compiler }

func (a *App) Manager() *activation.Manager { return a.manager }

func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Metrics returns the registry holding the engine's collectors.
func (a *App) Metrics() *prometheus.Registry { return a.metricsRegistry }

// CompileFile compiles a spec file into the app's registry.
func (a *App) CompileFile(path string, overwrite bool) (*convention.Convention, error) {
	return a.compiler.CompileFile(a.ctx, path, compiler.Options{Overwrite: overwrite})
}

// Use activates the named convention.
func (a *App) Use(name string) error {
	return a.manager.Use(a.ctx, name)
}

// Scoped runs fn with the named convention active and restores the
// previous one afterwards.
func (a *App) Scoped(name string, fn func(ctx context.Context) error) error {
	return a.manager.Scoped(a.ctx, name, fn)
}

// Delete removes a convention and its persisted artifact. An active
// convention is deactivated first.
func (a *App) Delete(name string) error {
	if active, ok := a.manager.Active(); ok && !active.IsNone() && active.Name == convention.NormalizeName(name) {
		a.manager.Deactivate(a.ctx)
	}
	return a.compiler.Delete(a.ctx, name)
}

// NewRoot creates a root container under the active convention.
func (a *App) NewRoot(args *activation.Args) (*tree.Node, error) {
	return tree.NewRoot(a.ctx, a.pipeline, args)
}
