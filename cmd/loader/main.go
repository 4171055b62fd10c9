package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/alim08/fin_quotes/pkg/config"
	"github.com/alim08/fin_quotes/pkg/database"
	"github.com/alim08/fin_quotes/pkg/loader"
	"github.com/alim08/fin_quotes/pkg/logger"
	"github.com/alim08/fin_quotes/pkg/metrics"
	"github.com/alim08/fin_quotes/pkg/models"
	"github.com/alim08/fin_quotes/pkg/pipeline"
	"github.com/alim08/fin_quotes/pkg/staging"
	"github.com/alim08/fin_quotes/pkg/xmlfeed"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("config error: " + err.Error())
	}

	// Initialize logger
	if err := logger.Init(); err != nil {
		panic("logger init: " + err.Error())
	}

	code := run(cfg)
	logger.Log.Sync()
	os.Exit(code)
}

func run(cfg *config.Config) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cfg.RequireDatabase(); err != nil {
		logger.Log.Error("config", zap.Error(err))
		return 2
	}
	policy, err := models.ParseMergePolicy(cfg.MergePolicy)
	if err != nil {
		logger.Log.Error("config", zap.Error(err))
		return 2
	}

	go metrics.Serve(ctx, cfg.MetricsPort, logger.Log)

	store, err := staging.Open(cfg.StagingDir, cfg.RedisURL, logger.Log)
	if err != nil {
		logger.Log.Error("staging store", zap.Error(err))
		return 1
	}
	defer store.Close()

	db, err := database.New(database.NewConfig(cfg.DatabaseURL))
	if cfg.Check {
		dbCheck := func(context.Context) error { return err }
		if db != nil {
			defer db.Close()
			dbCheck = db.HealthCheck
		}
		return checkPrerequisites(ctx, []prerequisite{
			{name: "database", check: dbCheck},
			{name: "staging", check: store.Check},
		})
	}
	if err != nil {
		logger.Log.Error("database", zap.Error(err))
		return 1
	}
	defer db.Close()

	if _, err := db.EnsureSchema(ctx, policy); err != nil {
		if errors.Is(err, database.ErrDuplicateKeys) {
			logger.Log.Error("upsert needs unique (ticker, trade_date); remove the duplicates listed by the report command first", zap.Error(err))
		} else {
			logger.Log.Error("schema", zap.Error(err))
		}
		return 1
	}

	coord := loader.NewCoordinator(database.NewQuoteRepository(db),
		loader.WithChunkSize(cfg.BatchSize),
		loader.WithLogger(logger.Log))

	p := pipeline.New(pipeline.Deps{
		Source:   store,
		Resolver: xmlfeed.NewResolver(cfg.Namespaces),
		Loader:   coord,
		Policy:   policy,
		Log:      logger.Log,
	})

	res, err := p.Run(ctx, cfg.DocumentName())
	if err != nil {
		logger.Log.Error("load failed", zap.String("document", cfg.DocumentName()), zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)
	return 0
}
