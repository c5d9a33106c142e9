// Package app wires the registry, config store, dispatch proxy and change
// hub into one explicitly constructed object shared by the CLI commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kingrea/smart-mirror/internal/builtin"
	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/config"
	"github.com/kingrea/smart-mirror/internal/dispatch"
	"github.com/kingrea/smart-mirror/internal/logging"
	"github.com/kingrea/smart-mirror/internal/registry"
	"github.com/kingrea/smart-mirror/internal/server"
	"github.com/kingrea/smart-mirror/internal/stream"
	"github.com/kingrea/smart-mirror/internal/userconfig"
	"github.com/kingrea/smart-mirror/internal/watch"
	"github.com/kingrea/smart-mirror/plugins"
)

// Options tunes App construction.
type Options struct {
	Version string
	// Console receives human-readable log lines; stderr when nil.
	Console io.Writer
	// Logger replaces the file-backed logger.
	Logger *zap.SugaredLogger
	// RedisClient replaces the client built from the store settings.
	RedisClient redis.UniversalClient
}

// App holds the long-lived services.
type App struct {
	Config   *config.Config
	Logger   *zap.SugaredLogger
	Registry *registry.Registry
	Store    *userconfig.Store
	Proxy    *dispatch.Proxy
	Hub      *stream.Hub
	Metrics  *prometheus.Registry
	Reloader *watch.Reloader
	Version  string

	closers []func() error
}

// New builds the services described by cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := config.InitDataDir(cfg); err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Version: opts.Version}

	logger := opts.Logger
	if logger == nil {
		l, closeLog, err := logging.New(cfg.DataDir, logging.Options{Level: cfg.LogLevel, Console: opts.Console})
		if err != nil {
			return nil, err
		}
		logger = l
		a.closers = append(a.closers, closeLog)
	}
	a.Logger = logger

	a.Metrics = prometheus.NewRegistry()
	a.Metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a.Registry = registry.New(
		registry.WithSource(builtin.Source()),
		registry.WithSource(registry.Source{
			Kind:     component.SourcePlugin,
			FS:       os.DirFS(cfg.PluginsDir),
			Resolver: plugins.NewResolver(),
		}),
		registry.WithLogger(logger.Named("registry")),
		registry.WithMetrics(a.Metrics),
	)

	backend, err := a.backend(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = userconfig.NewStore(backend, a.Registry, userconfig.WithLogger(logger.Named("userconfig")))
	a.Proxy = dispatch.New(a.Registry, a.Store,
		dispatch.WithLogger(logger.Named("dispatch")),
		dispatch.WithMetrics(a.Metrics),
	)
	a.Hub = stream.NewHub(stream.WithLogger(logger.Named("stream")))
	a.Reloader = &watch.Reloader{
		Registry: a.Registry,
		Store:    a.Store,
		Hub:      a.Hub,
		Logger:   logger.Named("watch"),
	}
	return a, nil
}

func (a *App) backend(opts Options) (userconfig.Backend, error) {
	switch a.Config.Store.Backend {
	case config.BackendRedis:
		client := opts.RedisClient
		if client == nil {
			rc := a.Config.Store.Redis
			c := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
			a.closers = append(a.closers, c.Close)
			client = c
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("app: redis %s: %w", a.Config.Store.Redis.Addr, err)
		}
		return userconfig.NewRedisBackend(client, a.Config.Store.Redis.Key), nil
	default:
		return userconfig.NewFileBackend(a.Config.UserConfigPath()), nil
	}
}

// Close releases the log file and any Redis connection.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Serve runs the HTTP server, and the plugin watcher when enabled, until
// ctx ends.
func (a *App) Serve(ctx context.Context) error {
	if err := a.Registry.Load(ctx); err != nil {
		return err
	}
	if _, err := a.Store.LoadReconciled(ctx); err != nil {
		return err
	}
	a.Logger.Infof("app: %d components loaded", a.Registry.Len())

	srv := server.New(server.SettingsFromConfig(a.Config), server.Deps{
		Registry: a.Registry,
		Store:    a.Store,
		Proxy:    a.Proxy,
		Hub:      a.Hub,
		Version:  a.Version,
	},
		server.WithLogger(a.Logger.Named("server")),
		server.WithMetrics(a.Metrics, a.Metrics),
	)
	if err := srv.Start(ctx); err != nil {
		return err
	}

	watchDone := make(chan error, 1)
	if a.Config.Watch() {
		w := watch.New(a.Config.PluginsDir, a.Reloader.Reload, watch.WithLogger(a.Logger.Named("watch")))
		go func() { watchDone <- w.Run(ctx) }()
	} else {
		watchDone <- nil
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if werr := <-watchDone; werr != nil {
		a.Logger.Warnf("app: watcher stopped: %v", werr)
	}
	return err
}
