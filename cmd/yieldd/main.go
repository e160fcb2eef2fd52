package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"yieldcore/config"
	"yieldcore/observability/logging"
	telemetry "yieldcore/observability/otel"
	"yieldcore/services/opsapi"
)

func main() {
	configPath := flag.String("config", "./yieldd.toml", "path to the TOML or YAML configuration")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("yieldd: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.Setup(cfg.ServiceName, cfg.Environment, logging.Options{
		Level:      logging.ParseLevel(cfg.Logging.Level),
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	headers := telemetry.ParseHeaders(cfg.Telemetry.Headers)
	for key, value := range headers {
		logger.Debug("telemetry header configured", logging.MaskField(key, value))
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     headers,
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(flushCtx)
	}()

	app, err := buildCore(cfg, logger, time.Now)
	if err != nil {
		return err
	}
	defer app.Close()

	k := app.newKeeper(logger)
	if err := k.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := k.Stop(stopCtx); err != nil {
			logger.Warn("keeper did not stop cleanly", "error", err)
		}
	}()

	srv, err := opsapi.New(opsapi.Config{
		ListenAddress: cfg.HTTP.ListenAddress,
		Lock:          app.lock,
		Farms:         app.farms,
		Reserves:      app.reserves,
		Emission:      app.emission,
		Cooldown:      app.cooldown,
		Logger:        logger,

		RequestsPerMinute: cfg.HTTP.RequestsPerMinute,
		Burst:             cfg.HTTP.Burst,
	})
	if err != nil {
		return err
	}
	logger.Info("yieldd started", "dataDir", cfg.DataDir, "token", cfg.Token.Symbol)
	return srv.Run(ctx)
}
