package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/meridianx/meridian/params"
	"github.com/meridianx/meridian/pkg/api"
	"github.com/meridianx/meridian/pkg/exchange"
	"github.com/meridianx/meridian/pkg/storage"
	"github.com/meridianx/meridian/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	level := zapcore.InfoLevel
	if os.Getenv("LOG_DEBUG") == "true" {
		level = zapcore.DebugLevel
	}
	var (
		logger *zap.Logger
		err    error
	)
	if cfg.Server.LogPath != "" {
		logger, err = util.NewLoggerWithFile(cfg.Server.LogPath, level)
	} else {
		logger, err = util.NewLogger(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	store, err := storage.NewPebbleStore(cfg.Server.DBPath)
	if err != nil {
		logger.Fatal("open store", zap.String("path", cfg.Server.DBPath), zap.Error(err))
	}
	defer store.Close()

	ex := exchange.New(exchange.Options{
		BookCapacity:      cfg.Engine.BookCapacity,
		EventCapacity:     cfg.Engine.EventQueueCapacity,
		DefaultMatchLimit: cfg.Engine.MaxTakenOrders,
	}, logger.Named("exchange"), util.RealClock{}, store, store)

	if err := ex.Load(); err != nil {
		logger.Fatal("load state", zap.Error(err))
	}

	server := api.NewServer(ex, logger.Named("api"))
	errCh := make(chan error, 1)
	go func() { errCh <- server.Start(cfg.Server.ListenAddr) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logger.Fatal("api server", zap.Error(err))
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}
}
