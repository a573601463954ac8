package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/config"
	"github.com/bondesk/pnl-ledger/internal/ingest"
	"github.com/bondesk/pnl-ledger/internal/ledger"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/bondesk/pnl-ledger/internal/position"
	"github.com/bondesk/pnl-ledger/internal/postgres"
	"github.com/bondesk/pnl-ledger/internal/prices"
	"github.com/joho/godotenv"
)

const (
	_ledgerCfgFilePath = "./configs/ledger.yaml"
	_dayFormat         = "20060102"
)

// backfill replays historical trade and price files for a date range through
// the same pipeline the live service uses. Already-processed files are
// skipped by the fingerprint check, so re-running a range is safe.
func main() {
	from := flag.String("from", "", "first trading day, YYYYMMDD")
	to := flag.String("to", "", "last trading day, YYYYMMDD")
	flag.Parse()

	zapLogger, loggerSync, err := logger.NewZapLogger(logger.Info)
	if err != nil {
		log.Fatalf("%s: can't init logger", err)
	}
	defer loggerSync()

	if err := godotenv.Load(); err != nil {
		zapLogger.Warnf("can't detect .env file")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadLedgerConfig(_ledgerCfgFilePath)
	if err != nil {
		zapLogger.Fatalf("%s: can't load ledger cfg", err)
	}

	cal, err := calendar.New(cfg.Timezone, cfg.AfternoonCutoffHour, cfg.CloseCutoffHour, cfg.FileCutoverHour)
	if err != nil {
		zapLogger.Fatalf("%s: can't build trading calendar", err)
	}

	fromDay, err := time.ParseInLocation(_dayFormat, *from, cal.Location())
	if err != nil {
		zapLogger.Fatalf("%s: bad -from day", err)
	}
	toDay, err := time.ParseInLocation(_dayFormat, *to, cal.Location())
	if err != nil {
		zapLogger.Fatalf("%s: bad -to day", err)
	}
	if toDay.Before(fromDay) {
		zapLogger.Fatalf("-to %s is before -from %s", *to, *from)
	}

	pgConfig := postgres.NewConfigFromEnv().Setup()
	db, err := postgres.NewDB(pgConfig)
	if err != nil {
		zapLogger.Fatalf("%s: can't connect to db", err)
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

	day := fromDay
	for !day.After(toDay) {
		if ctx.Err() != nil {
			break
		}
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			day = cal.NextTradingDay(day)
			continue
		}
		if err := replayDay(ctx, cfg, cal, processor, manager, day, zapLogger); err != nil {
			zapLogger.Fatalf("%s: backfill stopped at %s", err, day.Format(_dayFormat))
		}
		day = cal.NextTradingDay(day)
	}

	zapLogger.Infof("backfill finished, %d live positions", len(manager.Positions()))
}

func replayDay(
	ctx context.Context,
	cfg config.LedgerConfig,
	cal *calendar.Calendar,
	processor *ingest.Processor,
	manager *position.Manager,
	day time.Time,
	zapLogger logger.Logger,
) error {
	name := calendar.TradingDayFilename(day)
	zapLogger.Infof("replaying trading day %s", name)

	candidates := []string{
		filepath.Join(cfg.PricesDir, fmt.Sprintf("market_prices_%s_%02d00.csv", name, cal.AfternoonCutoffHour())),
		filepath.Join(cfg.PricesDir, fmt.Sprintf("market_prices_%s_%02d00.csv", name, cal.CloseCutoffHour())),
		filepath.Join(cfg.TradesDir, "trades_"+name+".csv"),
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			zapLogger.Warnf("no file %s, skipping", filepath.Base(path))
			continue
		}
		if err := processor.ProcessFile(ctx, path); err != nil {
			return err
		}
	}

	// mark against that day's settle so summaries carry settlement values
	settleAt := day.Add(time.Duration(cal.CloseCutoffHour()) * time.Hour)
	if err := manager.UpdateMarketPrices(ctx, settleAt); err != nil {
		return err
	}
	if err := manager.TakeSnapshot(ctx, model.SnapshotEOD, settleAt); err != nil {
		return err
	}
	return manager.WriteDailySummaries(ctx, day)
}
