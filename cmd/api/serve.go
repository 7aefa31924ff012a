package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"propie/api/internal/app"
	"propie/api/internal/graph"
	"propie/api/internal/telemetry"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := loadRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	logger := rt.logger

	shutdownTracing, err := telemetry.Setup(ctx, "propie-api", rt.cfg.OTELEndpoint, rt.cfg.OTELEnabled)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	httpServer := app.NewHTTPServer(rt.service, rt.cfg.CORSOrigin, logger)
	graphHandler, err := graph.NewHandler(rt.service, logger)
	if err != nil {
		return err
	}
	httpServer.MountGraphQL(graphHandler)

	server := &http.Server{
		Addr:              rt.cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("PropIE API listening",
			zap.String("addr", rt.cfg.Addr),
			zap.String("backend", rt.cfg.RepositoryBackend),
			zap.Bool("search", rt.service.SearchHealthy()),
			zap.Bool("email", rt.service.EmailConfigured()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}
