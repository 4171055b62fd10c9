package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/alim08/fin_quotes/pkg/archive"
    "github.com/alim08/fin_quotes/pkg/config"
    "github.com/alim08/fin_quotes/pkg/logger"
    "github.com/alim08/fin_quotes/pkg/metrics"
    "github.com/alim08/fin_quotes/pkg/staging"
    "go.uber.org/zap"
)

func main() {
    // 1. Load config
    cfg, err := config.Load()
    if err != nil {
        panic("config error: " + err.Error())
    }

    // 2. Init logger
    if err := logger.Init(); err != nil {
        panic("logger init: " + err.Error())
    }
    defer logger.Log.Sync()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    // 3. Metrics endpoint, if asked for
    go metrics.Serve(ctx, cfg.MetricsPort, logger.Log)

    // 4. Open the document store
    store, err := staging.Open(cfg.StagingDir, cfg.RedisURL, logger.Log)
    if err != nil {
        logger.Log.Fatal("staging store", zap.Error(err))
    }
    defer store.Close()

    // 5. Download, unpack, stage
    fetcher := archive.NewFetcher(archive.WithLogger(logger.Log))
    name, err := fetchSession(ctx, cfg, fetcher, store)
    if err != nil {
        logger.Log.Error("fetch failed", zap.String("session", cfg.SessionDate), zap.Error(err))
        logger.Log.Sync()
        os.Exit(1)
    }
    logger.Log.Info("session staged", zap.String("document", name))
}
