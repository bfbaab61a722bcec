package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"silomonitor/alert"
	"silomonitor/bus"
	"silomonitor/config"
	"silomonitor/device"
	"silomonitor/httpapi"
	"silomonitor/persistence"
	"silomonitor/poll"
	"silomonitor/state"
)

const (
	appName    = "SiloMonitor"
	appVersion = "1.0.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	version := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", appName, appVersion)
		os.Exit(0)
	}

	if *configPath == "" {
		log.Fatal("Error: -config flag is required")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if werr := config.Example().Save(*configPath); werr != nil {
				log.Fatalf("config file not found at %s, and failed to write an example: %v", *configPath, werr)
			}
			log.Fatalf("config file not found at %s; wrote an example config there, review it and restart", *configPath)
		}
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := setupLogging(cfg, *debug)
	logger.Info("starting silo monitor", "version", appVersion, "config", *configPath)

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("invalid timezone", "timezone", cfg.Timezone, "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	adapter := bus.NewAdapter(cfg.Modbus, logger)
	reader := device.NewReader(adapter, cfg.Polling.MaxRetries)
	validator := device.NewValidator(cfg.Validation.MinValue, cfg.Validation.MaxValue)
	store := state.New(cfg.Polling.Slaves, cfg.HistoryMaxPoints, location, config.ExternalCode)

	writer := persistence.NewWriter(cfg.Database, location, logger)
	if err := writer.VerifyTable(ctx); err != nil {
		logger.Error("persistence table verification failed", "error", err)
		os.Exit(1)
	}
	writerDone := make(chan struct{})
	go func() {
		writer.Run(ctx)
		close(writerDone)
	}()

	var transport alert.Transport
	if cfg.Alerts.Enabled {
		telegram := alert.NewTelegramTransport(
			os.Getenv(cfg.Alerts.Telegram.BotTokenEnv),
			os.Getenv(cfg.Alerts.Telegram.ChatIDEnv),
		)
		if err := telegram.TestConnection(); err != nil {
			logger.Warn("telegram connectivity check failed, alerts will still be attempted", "error", err)
		}
		transport = telegram
	}

	eventBus, err := alert.NewEventBus(cfg.Alerts.NATSURL, "silomonitor.alerts", logger)
	if err != nil {
		logger.Warn("failed to connect alert event bus, continuing without it", "error", err)
		eventBus = nil
	}
	if eventBus != nil {
		defer eventBus.Close()
	}

	engine := alert.NewEngine(cfg.Alerts.OfflineThreshold(), cfg.Alerts.Telegram.Cooldown(), transport, eventBus, location, logger)
	if cfg.Alerts.Enabled {
		engine.Startup()
	}

	scheduler := poll.New(reader, store, writer, engine, validator, cfg.Polling.Interval(), cfg.Polling.SlaveDelay(), config.ExternalCode, logger)
	go scheduler.Run(ctx)

	api := httpapi.New(store, writer, cfg.Database.Enabled, engine, cfg.Alerts.Enabled, config.ExternalCode, logger)
	api.Start(fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port))

	logger.Info("silo monitor started", "http_port", cfg.HTTP.Port, "slaves", len(cfg.Polling.Slaves))

	sig := <-sigChan
	logger.Info("received shutdown signal", "signal", sig.String())
	if cfg.Alerts.Enabled {
		engine.Critical("silo monitor shutting down")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping http api", "error", err)
	}

	done := make(chan struct{})
	go func() {
		<-writerDone
		adapter.Close()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timed out, forcing exit")
	}
}

// setupLogging configures logging with optional rotating file output.
func setupLogging(cfg *config.Config, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Logging.LogDir != "" {
		if err := os.MkdirAll(cfg.Logging.LogDir, 0755); err != nil {
			log.Printf("warning: failed to create log directory: %v", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			logFile := cfg.Logging.LogFile
			if logFile == "" {
				logFile = "silomonitor.log"
			}
			writer := &lumberjack.Logger{
				Filename:   filepath.Join(cfg.Logging.LogDir, logFile),
				MaxSize:    cfg.Logging.MaxBytes / (1024 * 1024),
				MaxBackups: cfg.Logging.BackupCount,
				Compress:   true,
			}
			handler = slog.NewJSONHandler(writer, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
