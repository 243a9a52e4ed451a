// Package main provides the entry point for the restaurant sync relay.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/varunkan/ai-pos-system-sub011/internal/config"
	"github.com/varunkan/ai-pos-system-sub011/internal/metrics"
	"github.com/varunkan/ai-pos-system-sub011/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	logger := initLogger()
	defer logger.Sync()

	logger.Info("starting sync relay")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	logger.Info("configuration loaded",
		zap.Int("server_port", cfg.Server.Port),
		zap.Bool("evict_on_disconnect", cfg.Relay.EvictOnDisconnect),
	)

	m := metrics.NewMetrics()
	m.SetHealthStatus(true)

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	srv := server.New(cfg, m, logger)
	srv.SetupRoutes(m)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	logger.Info("sync relay started", zap.Int("port", cfg.Server.Port))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.Error("server error", zap.Error(err))
	}

	logger.Info("initiating graceful shutdown")
	m.SetHealthStatus(false)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("failed to shutdown HTTP server", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown metrics server", zap.Error(err))
		}
	}

	logger.Info("sync relay shutdown complete")
}

// initLogger initializes the zap logger from LOG_LEVEL and LOG_FORMAT.
func initLogger() *zap.Logger {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	var level zapcore.Level
	switch logLevel {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if os.Getenv("LOG_FORMAT") == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}

	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.OutputPaths = []string{"stdout"}
	zcfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := zcfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}
