package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/rickgao/routerx/internal/auth"
	"github.com/rickgao/routerx/internal/cache"
	"github.com/rickgao/routerx/internal/config"
	"github.com/rickgao/routerx/internal/database"
	"github.com/rickgao/routerx/internal/demo"
	"github.com/rickgao/routerx/internal/host"
	"github.com/rickgao/routerx/internal/metrics"
	"github.com/rickgao/routerx/internal/version"
	"github.com/rickgao/routerx/route"
	"github.com/rickgao/routerx/router"
)

// app is a configured router and everything it talks to. Start the router
// with app.router.Start and release everything with close.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	router   *router.Router
	demo     *demo.App // nil when generated tables are linked in
	store    cache.Store
	remote   *host.Remote   // set when host.url is configured
	recorder *host.Recorder // set otherwise
	registry *prometheus.Registry

	shutdownTracing func(context.Context) error
}

// newApp loads the config and builds the router. Logs go to logOut.
func newApp(ctx context.Context, configPath string, catalog *route.Catalog, logOut io.Writer) (*app, error) {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))

	a := &app{cfg: cfg, logger: logger}

	if len(catalog.Names()) == 0 {
		a.demo = demo.New(logger)
		a.demo.Register(catalog, cfg.Router.Module)
		logger.Info("no route tables linked in, serving the demo tables", "module", cfg.Router.Module)
	}

	a.store, err = openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var h router.Host
	if cfg.Host.URL != "" {
		a.remote, err = connectHost(ctx, cfg.Host, logger)
		if err != nil {
			_ = a.store.Close()
			return nil, err
		}
		h = a.remote
	} else {
		a.recorder = host.NewRecorder(logger)
		h = a.recorder
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(metrics.Config{
		Namespace: cfg.Metrics.Namespace,
		Registry:  a.registry,
	})

	tracerProvider, err := newTracerProvider(cfg.Tracing, logOut)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.shutdownTracing = tracerProvider.Shutdown

	a.router = router.New(router.Config{
		Debug:     cfg.Router.Debug,
		InitWait:  cfg.Router.InitWait,
		Timeout:   cfg.Router.Timeout,
		Workers:   cfg.Pool.Size,
		QueueSize: cfg.Pool.Queue,
		Stamp:     version.Stamp(),
	},
		router.WithLogger(logger),
		router.WithCatalog(catalog),
		router.WithStore(a.store),
		router.WithHost(h),
		router.WithObserver(m),
		router.WithTracer(tracerProvider.Tracer(router.TracerName)),
	)
	m.Watch(a.router.Stats)

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (cache.Store, error) {
	switch cfg.Cache.Driver {
	case config.CacheFile:
		return cache.NewFile(cfg.Cache.Path, cfg.Cache.Namespace), nil
	case config.CachePostgres:
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		store, err := database.OpenStore(ctx, cfg.Database, cfg.Cache.Namespace, logger)
		if err != nil {
			return nil, fmt.Errorf("open table cache: %w", err)
		}
		return store, nil
	default:
		return cache.NewMemory(), nil
	}
}

func connectHost(ctx context.Context, cfg config.HostConfig, logger *slog.Logger) (*host.Remote, error) {
	var creds *auth.Credentials
	if cfg.KeyID != "" {
		c, err := auth.LoadCredentials(cfg.KeyID, cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load host credentials: %w", err)
		}
		creds = c
	}

	remote := host.NewRemote(host.Config{
		URL:             cfg.URL,
		PingTimeout:     cfg.PingTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ResponseTimeout: cfg.ResponseTimeout,
	}, creds, logger)

	if err := remote.Connect(ctx); err != nil {
		return nil, err
	}
	return remote, nil
}

// newTracerProvider installs the global tracer provider. Spans are exported
// to out only when stdout tracing is on.
func newTracerProvider(cfg config.TracingConfig, out io.Writer) (*sdktrace.TracerProvider, error) {
	var opts []sdktrace.TracerProviderOption
	if cfg.Stdout {
		exporter, err := stdouttrace.New(
			stdouttrace.WithWriter(out),
			stdouttrace.WithPrettyPrint(),
		)
		if err != nil {
			return nil, fmt.Errorf("create stdout trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// close stops the router and releases the store, host and tracer.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.router != nil {
		errs = append(errs, a.router.Stop(ctx))
	}
	if a.remote != nil {
		errs = append(errs, a.remote.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}
