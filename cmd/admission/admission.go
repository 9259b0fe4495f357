package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission/internal/admission"
	"admission/internal/api"
	"admission/internal/config"
	"admission/internal/counter"
	"admission/internal/logger"
	"admission/internal/observability"
	"admission/internal/policy"
	"admission/internal/version"
	"admission/internal/violations"
)

var (
	configFile     = flag.String("config", "", "Path to configuration file")
	generateConfig = flag.String("generate-config", "", "Write an example configuration file to the given path and exit")
	showVersion    = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetInfo().String())
		return
	}

	if *generateConfig != "" {
		if err := config.SaveExample(*generateConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *generateConfig)
		return
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ver := version.GetInfo()

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Initialize the counter backend
	counterStore, err := counter.NewStore(cfg.Counter)
	if err != nil {
		slog.Error("Failed to initialize counter store", "error", err, "type", cfg.Counter.Type)
		os.Exit(1)
	}
	defer counterStore.Close()

	// Initialize the violation audit store and its async recorder
	auditStore, err := violations.NewStore(cfg.Audit)
	if err != nil {
		slog.Error("Failed to initialize audit store", "error", err, "type", cfg.Audit.Type)
		os.Exit(1)
	}
	defer auditStore.Close()

	metrics := observability.NewAdmissionMetrics()

	recorder := violations.NewRecorder(auditStore, cfg.Audit,
		violations.WithDropCallback(metrics.ViolationDropped))

	// Wire the admission pipeline
	registry := policy.NewRegistry(cfg.Limits)
	engine := admission.NewEngine(counterStore, registry, cfg.Limits.BurstWindowSeconds)
	extractor := admission.NewExtractor(cfg.Limits)

	handlers := api.NewHandlers(engine, registry, recorder, counterStore)

	routeOpts := []api.RouteOption{
		api.WithAdmissionMiddleware(admission.Middleware(extractor, engine, recorder, metrics)),
	}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path)
		go func() {
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("Starting server", "addr", server.Addr)

		var err error
		if cfg.Server.TLSEnabled {
			if cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "" {
				slog.Error("TLS is enabled but cert file or key file is not specified")
				os.Exit(1)
			}
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}

		if err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")

	// Create a deadline to wait for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Shutdown metrics server
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	// Attempt graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	// Drain queued violation records before the audit store closes.
	recorder.Close()

	slog.Info("Server shutdown complete")
}
