package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/ratp-sensor/internal/common/config"
	"github.com/ratp-sensor/internal/common/discord"
	"github.com/ratp-sensor/internal/common/logger"
	"github.com/ratp-sensor/internal/host"
	"github.com/ratp-sensor/internal/platform"
	"github.com/ratp-sensor/internal/ratp"
	"github.com/ratp-sensor/internal/sensor"
	"github.com/ratp-sensor/internal/server"
)

func main() {
	// .env is optional, the environment may already be set
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic("Failed to load .env file: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = logger.ParseLogLevel(cfg.Logging.Level)
	logCfg.FilePath = cfg.Logging.FilePath
	log := logger.NewFromConfig(logCfg)

	log.Info("RATP sensor starting",
		"log_level", cfg.Logging.Level,
		"api", cfg.RATP.BaseURL,
		"stops", len(cfg.Stops),
		"scan_interval", cfg.Host.ScanInterval,
		"min_time_between_updates", cfg.RATP.MinTimeBetweenUpdates,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var notifier host.Notifier
	if cfg.Logging.DiscordURL != "" {
		notifier = discord.NewClient(cfg.Logging.DiscordURL)
	}

	h := host.New(host.Config{ScanInterval: cfg.Host.ScanInterval}, log, notifier)
	client := ratp.NewClient(cfg.RATP.BaseURL, cfg.RATP.Timeout, log)
	opts := sensor.Options{MinTimeBetweenUpdates: cfg.RATP.MinTimeBetweenUpdates}

	if err := platform.Setup(ctx, cfg.Stops, client, opts, log, h); err != nil {
		log.Fatal("Failed to set up sensors", "error", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(h, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := h.Run(ctx); err != nil {
			log.Error("Poll cycle error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("Starting HTTP server", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "error", err)
		}
	}()

	<-sigChan
	log.Info("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown", "error", err)
	}

	wg.Wait()

	log.Info("RATP sensor stopped")
}
