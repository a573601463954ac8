package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/bondesk/pnl-ledger/internal/api"
	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/config"
	"github.com/bondesk/pnl-ledger/internal/feed"
	"github.com/bondesk/pnl-ledger/internal/ingest"
	"github.com/bondesk/pnl-ledger/internal/ledger"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/position"
	"github.com/bondesk/pnl-ledger/internal/postgres"
	"github.com/bondesk/pnl-ledger/internal/prices"
	"github.com/bondesk/pnl-ledger/internal/server"
	"github.com/bondesk/pnl-ledger/internal/service"
	"github.com/joho/godotenv"
)

const (
	_ledgerCfgFilePath = "./configs/ledger.yaml"
)

func main() {
	zapLogger, loggerSync, err := logger.NewZapLogger(logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if err := godotenv.Load(); err != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pgConfig := postgres.NewConfigFromEnv().Setup()
	zapLogger.Debugf("trying to connect to db with: %s", pgConfig)
	db, err := postgres.NewDB(pgConfig)
	if err != nil {
		zapLogger.Fatalf("%s: can't connect to db", err)
	}

	cfg, err := config.LoadLedgerConfig(_ledgerCfgFilePath)
	if err != nil {
		zapLogger.Fatalf("%s: can't load ledger cfg", err)
	}

	cal, err := calendar.New(cfg.Timezone, cfg.AfternoonCutoffHour, cfg.CloseCutoffHour, cfg.FileCutoverHour)
	if err != nil {
		zapLogger.Fatalf("%s: can't build trading calendar", err)
	}

	store := ledger.NewStore(db, zapLogger)
	if err := store.InitSchema(ctx); err != nil {
		zapLogger.Fatalf("%s: can't init schema", err)
	}

	selector := prices.NewSelector(db, cal, zapLogger)
	manager := position.NewManager(store, selector, zapLogger)
	if err := manager.Rebuild(ctx); err != nil {
		zapLogger.Fatalf("%s: can't rebuild positions from trade log", err)
	}

	pre := ingest.NewPreprocessor(ingest.NewResolver(), cal.Location(), zapLogger)
	processor := ingest.NewProcessor(store, pre, manager, cfg.FilesPerMinute, zapLogger)
	svc := service.NewService(cfg, cal, processor, manager, zapLogger)

	handler := api.NewHandler(store, zapLogger)
	httpServer := server.NewHTTPServer(ctx, cfg.HTTPPort, handler.Router())

	errCh := make(chan error, 3)
	go func() {
		errCh <- svc.Run(ctx)
	}()
	go func() {
		errCh <- httpServer.Run(ctx)
	}()
	if cfg.Feed.Enabled() {
		poller := feed.NewPoller(cfg.Feed, cfg.PricesDir, cal, zapLogger)
		go func() {
			errCh <- poller.Run(ctx)
		}()
	}

	zapLogger.Infof("ledger engine up, http on :%s, watching %s and %s", cfg.HTTPPort, cfg.TradesDir, cfg.PricesDir)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			zapLogger.Errorf("%s: component failed", err)
		}
		cancel()
	}

	zapLogger.Infof("start graceful shutdown")
}
