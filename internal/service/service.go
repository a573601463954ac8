package service

import (
	"context"
	"sync"
	"time"

	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/config"
	"github.com/bondesk/pnl-ledger/internal/ingest"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/bondesk/pnl-ledger/internal/position"
)

const _schedulerTick = time.Minute

// Service ties the file watchers, the processor, the position manager and
// the daily schedule together. It owns the recalc queue: price ingestion
// events are turned into mark-to-market passes on a single worker so marks
// never run concurrently with each other.
type Service struct {
	cfg       config.LedgerConfig
	cal       *calendar.Calendar
	processor *ingest.Processor
	manager   *position.Manager
	logger    logger.Logger

	recalcCh chan time.Time

	lastSOD   time.Time
	lastEOD   time.Time
	activeDay time.Time
}

func NewService(
	cfg config.LedgerConfig,
	cal *calendar.Calendar,
	processor *ingest.Processor,
	manager *position.Manager,
	logger logger.Logger,
) *Service {
	s := &Service{
		cfg:       cfg,
		cal:       cal,
		processor: processor,
		manager:   manager,
		logger:    logger,
		recalcCh:  make(chan time.Time, cfg.RecalcQueueSize),
	}

	processor.OnPricesIngested = func(day time.Time, bucket int) {
		// rebuild the bucket instant in the reference timezone, the parsed
		// day only carries the civil date
		y, mo, d := day.Date()
		s.enqueueRecalc(time.Date(y, mo, d, bucket, 0, 0, 0, cal.Location()))
	}

	return s
}

// enqueueRecalc never blocks the ingestion path. A full queue means a pass
// is already pending and the backlog of marks will be covered by it.
func (s *Service) enqueueRecalc(asOf time.Time) {
	select {
	case s.recalcCh <- asOf:
	default:
		s.logger.Warnf("recalc queue full, dropping mark request as of %s", asOf)
	}
}

// Run starts the watchers, the recalc worker and the SOD/EOD scheduler and
// blocks until ctx is cancelled or a watcher fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// snapshots whose hour already passed today were taken by the previous
	// run, a restart must not duplicate them
	now := time.Now().In(s.cal.Location())
	day := s.cal.Date(now)
	if now.Hour() >= s.cfg.SODHour {
		s.lastSOD = day
	}
	if s.cal.PastEOD(now) {
		s.lastEOD = day
	}
	s.activeDay = s.cal.ActiveTradeDay(now)
	s.logger.Infof("active trade file is trades_%s.csv", calendar.TradingDayFilename(s.activeDay))

	tradesWatcher := ingest.NewWatcher(s.cfg.TradesDir, s.cfg.Debounce, func(path string) {
		if err := s.processor.ProcessFile(ctx, path); err != nil {
			s.logger.Errorf("%s: can't process %s", err, path)
		}
	}, s.logger)
	pricesWatcher := ingest.NewWatcher(s.cfg.PricesDir, s.cfg.Debounce, func(path string) {
		if err := s.processor.ProcessFile(ctx, path); err != nil {
			s.logger.Errorf("%s: can't process %s", err, path)
		}
	}, s.logger)

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := tradesWatcher.Run(ctx); err != nil {
			errCh <- err
		}
	}()
	go func() {
		defer wg.Done()
		if err := pricesWatcher.Run(ctx); err != nil {
			errCh <- err
		}
	}()

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.recalcWorker(ctx)
	}()
	go func() {
		defer wg.Done()
		s.scheduler(ctx)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}
	wg.Wait()
	return runErr
}

func (s *Service) recalcWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case asOf := <-s.recalcCh:
			if err := s.manager.UpdateMarketPrices(ctx, asOf); err != nil {
				s.logger.Errorf("%s: mark-to-market pass failed", err)
			}
		}
	}
}

func (s *Service) scheduler(ctx context.Context) {
	t := time.NewTicker(_schedulerTick)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx, time.Now())
		}
	}
}

func (s *Service) tick(ctx context.Context, at time.Time) {
	now := at.In(s.cal.Location())
	day := s.cal.Date(now)

	// the cutover flips the live trade file name; new drops for the old name
	// are late amendments, so surface the transition
	if active := s.cal.ActiveTradeDay(now); !active.Equal(s.activeDay) {
		s.activeDay = active
		s.logger.Infof("trade file cutover, active trade file is now trades_%s.csv", calendar.TradingDayFilename(active))
	}

	if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		return
	}

	if now.Hour() >= s.cfg.SODHour && !s.lastSOD.Equal(day) {
		if err := s.manager.TakeSnapshot(ctx, model.SnapshotSOD, now); err != nil {
			s.logger.Errorf("%s: sod snapshot failed, will retry next tick", err)
			return
		}
		s.lastSOD = day
	}

	if s.cal.PastEOD(now) && !s.lastEOD.Equal(day) {
		// settle prices land at the close cutoff, mark once more so the
		// snapshot and summaries carry settlement values
		if err := s.manager.UpdateMarketPrices(ctx, now); err != nil {
			s.logger.Errorf("%s: eod mark-to-market failed, will retry next tick", err)
			return
		}
		if err := s.manager.TakeSnapshot(ctx, model.SnapshotEOD, now); err != nil {
			s.logger.Errorf("%s: eod snapshot failed, will retry next tick", err)
			return
		}
		if err := s.manager.WriteDailySummaries(ctx, day); err != nil {
			s.logger.Errorf("%s: daily summaries failed, will retry next tick", err)
			return
		}
		s.lastEOD = day
	}
}
