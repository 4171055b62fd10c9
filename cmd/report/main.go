package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alim08/fin_quotes/pkg/config"
	"github.com/alim08/fin_quotes/pkg/database"
	"github.com/alim08/fin_quotes/pkg/logger"
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
	defer logger.Log.Sync()

	if err := cfg.RequireDatabase(); err != nil {
		logger.Log.Fatal("config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(database.NewConfig(cfg.DatabaseURL))
	if err != nil {
		logger.Log.Fatal("database", zap.Error(err))
	}
	defer db.Close()

	s, err := collect(ctx, database.NewReportRepository(db), db, cfg.ReportLimit, cfg.Ticker)
	if err != nil {
		logger.Log.Fatal("report", zap.Error(err))
	}
	if err := render(os.Stdout, s); err != nil {
		logger.Log.Fatal("report", zap.Error(err))
	}
}
