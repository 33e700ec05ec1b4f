package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sonroyaalmerol/kumastream/internal/cache"
	"github.com/sonroyaalmerol/kumastream/internal/config"
	"github.com/sonroyaalmerol/kumastream/internal/logging"
	"github.com/sonroyaalmerol/kumastream/internal/repository"
	"github.com/sonroyaalmerol/kumastream/internal/server"
	"github.com/sonroyaalmerol/kumastream/internal/stream"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := repository.OpenDB(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close()

	repo := repository.NewRepo(db)
	fileCache := cache.NewFileCache(cfg, repo, logger)
	if _, err := fileCache.Sweep(); err != nil {
		logger.Warn("temp sweep failed", zap.Error(err))
	}

	resolver := stream.NewResolver(cfg.YouTubeCookiesPath, cfg.YouTubePOToken, logger)
	env := stream.NewEnvironment(resolver, logger.Named("stream"))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, env, fileCache, logger)
	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("server", zap.Error(err))
	}
	logger.Info("shut down")
}
