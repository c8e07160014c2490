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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/commentlens/internal/config"
	"github.com/dshills/commentlens/internal/kvstore"
	"github.com/dshills/commentlens/internal/mcp"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version information and exit")
	configPath := flag.String("config", os.Getenv(config.EnvConfigPath), "path to a TOML configuration file")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (disabled when empty)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("CommentLens MCP Server\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", kvstore.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", kvstore.DriverName)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr (stdout reserved for MCP protocol)
	level, _ := config.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("CommentLens MCP server starting",
		"version", version,
		"build_mode", kvstore.BuildMode,
		"driver", kvstore.DriverName,
		"provider", cfg.Embedding.Provider,
	)

	opts := []mcp.Option{mcp.WithLogger(logger)}
	var metricsServer *http.Server
	if *metricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, mcp.WithRegisterer(reg))
		metricsServer = startMetrics(*metricsAddr, reg, logger)
	}

	server, err := mcp.NewServer(cfg, opts...)
	if err != nil {
		logger.Error("failed to create MCP server", "error", err)
		os.Exit(1)
	}

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("MCP server ready, listening on stdio")
		errChan <- server.Serve(ctx)
	}()

	exitCode := 0
	select {
	case sig := <-sigChan:
		logger.Info("shutting down", "signal", sig.String())
		if err := server.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	case err := <-errChan:
		if err != nil {
			logger.Error("server error", "error", err)
			exitCode = 1
		}
	}

	cancel()

	if metricsServer != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		stop()
	}

	logger.Info("server stopped")
	os.Exit(exitCode)
}

func startMetrics(addr string, reg *prometheus.Registry, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", "error", err)
		}
	}()
	return srv
}
