package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/routerx/internal/version"
	"github.com/rickgao/routerx/route"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the router with its admin server",
		Long: `Start the router and serve /health, the Prometheus metrics path,
/debug/routes and POST /navigate until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configPath)
		},
	}
}

func serve(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath, route.DefaultCatalog, os.Stdout)
	if err != nil {
		return err
	}
	logger := a.logger
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.close(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("starting routerx",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	if err := a.router.Start(ctx); err != nil {
		return err
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler:           a.admin().handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting admin server", "port", a.cfg.Metrics.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var hostErrs <-chan error
	if a.remote != nil {
		hostErrs = a.remote.Errors()
	}

	logger.Info("routerx running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", a.cfg.Metrics.Port),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		runErr = fmt.Errorf("admin server: %w", err)
	case err := <-hostErrs:
		runErr = fmt.Errorf("host connection: %w", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("admin server shutdown", "error", err)
	}

	logger.Info("routerx stopped")
	return runErr
}
