package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/bondesk/pnl-ledger/internal/fifo"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"go.uber.org/ratelimit"
)

// FileStore is the slice of the ledger store the processor needs for the
// file state machine and price persistence.
type FileStore interface {
	GetFileRecord(ctx context.Context, path string) (*model.FileRecord, error)
	UpsertFileRecord(ctx context.Context, fr model.FileRecord) error
	InsertPriceRecords(ctx context.Context, recs []model.PriceRecord) error
}

// TradeSink consumes validated trades in replay order.
type TradeSink interface {
	ProcessTrade(ctx context.Context, t model.Trade) error
}

// Processor is the file state machine: fingerprint check, pending →
// processing → completed/error transitions, and routing of parsed rows.
// A file whose (name, size, mtime) fingerprint matches a completed record
// is skipped, which is what makes reprocessing idempotent. Files that never
// reached completed are reprocessed from scratch on restart.
type Processor struct {
	store   FileStore
	pre     *Preprocessor
	sink    TradeSink
	limiter ratelimit.Limiter
	logger  logger.Logger

	// OnPricesIngested, when set, fires after a price file commits so the
	// orchestrator can trigger a mark-to-market pass.
	OnPricesIngested func(day time.Time, bucket int)
}

func NewProcessor(store FileStore, pre *Preprocessor, sink TradeSink, filesPerMinute int, logger logger.Logger) *Processor {
	return &Processor{
		store:   store,
		pre:     pre,
		sink:    sink,
		limiter: ratelimit.New(filesPerMinute, ratelimit.Per(time.Minute)),
		logger:  logger,
	}
}

// ProcessFile dispatches on the naming convention. Unknown names are
// ignored with a debug line.
func (p *Processor) ProcessFile(ctx context.Context, path string) error {
	name := filepath.Base(path)
	if day, ok := ParseTradeFilename(name); ok {
		return p.processTradeFile(ctx, path, day)
	}
	if day, bucket, ok := ParsePriceFilename(name); ok {
		return p.processPriceFile(ctx, path, day, bucket)
	}
	p.logger.Debugf("ignoring %s: name matches no convention", name)
	return nil
}

// shouldProcess runs the fingerprint check and moves the record to
// processing. Returns false when the file is unchanged since its last
// successful pass.
func (p *Processor) shouldProcess(ctx context.Context, path string, kind model.FileKind, size int64, mtime time.Time) (bool, error) {
	fr, err := p.store.GetFileRecord(ctx, path)
	if err != nil {
		return false, err
	}
	if fr != nil && fr.Status == model.FileCompleted && fr.SameFingerprint(size, mtime) {
		p.logger.Debugf("skip %s: fingerprint unchanged since completion", path)
		return false, nil
	}

	if err := p.store.UpsertFileRecord(ctx, model.FileRecord{
		Path:        path,
		Kind:        kind,
		Size:        size,
		ModTime:     mtime,
		Status:      model.FileProcessing,
		ProcessedAt: time.Now().UTC(),
	}); err != nil {
		return false, err
	}
	return true, nil
}

func (p *Processor) finish(ctx context.Context, path string, kind model.FileKind, size int64, mtime time.Time, total, invalid int, procErr error) {
	fr := model.FileRecord{
		Path:        path,
		Kind:        kind,
		Size:        size,
		ModTime:     mtime,
		Status:      model.FileCompleted,
		RowsTotal:   total,
		RowsInvalid: invalid,
		ProcessedAt: time.Now().UTC(),
	}
	if procErr != nil {
		fr.Status = model.FileError
		fr.LastError = procErr.Error()
	}
	if err := p.store.UpsertFileRecord(ctx, fr); err != nil {
		p.logger.Errorf("%s: can't finalize file record %s", err, path)
	}
}

func (p *Processor) processTradeFile(ctx context.Context, path string, day time.Time) error {
	p.limiter.Take()

	size, mtime, err := Stat(path)
	if err != nil {
		return err
	}
	ok, err := p.shouldProcess(ctx, path, model.TradeFile, size, mtime)
	if err != nil || !ok {
		return err
	}

	batch, err := p.pre.ParseTradeFile(path, day)
	if err != nil {
		// schema errors reject the whole file, nothing was ingested
		p.finish(ctx, path, model.TradeFile, size, mtime, 0, 0, err)
		var schemaErr *model.SchemaError
		if errors.As(err, &schemaErr) {
			p.logger.Errorf("%s: trade file rejected", err)
			return err
		}
		return fmt.Errorf("%w: can't parse trade file %s", err, path)
	}

	for _, rowErr := range batch.RowErrors {
		p.logger.Warnf("%s: skipped row in %s", rowErr, filepath.Base(path))
	}

	fifo.SortTrades(batch.Trades)
	for _, t := range batch.Trades {
		if err := p.sink.ProcessTrade(ctx, t); err != nil {
			// storage failure: the batch is retried as a whole next pass
			p.finish(ctx, path, model.TradeFile, size, mtime, batch.RowsTotal, len(batch.RowErrors), err)
			return fmt.Errorf("%w: batch aborted at trade %s", err, t.ID)
		}
	}

	p.finish(ctx, path, model.TradeFile, size, mtime, batch.RowsTotal, len(batch.RowErrors), nil)
	p.logger.Infof("processed %s: %d rows, %d invalid, trading day %s",
		filepath.Base(path), batch.RowsTotal, len(batch.RowErrors), day.Format("2006-01-02"))
	return nil
}

func (p *Processor) processPriceFile(ctx context.Context, path string, day time.Time, bucket int) error {
	p.limiter.Take()

	size, mtime, err := Stat(path)
	if err != nil {
		return err
	}
	ok, err := p.shouldProcess(ctx, path, model.PriceFile, size, mtime)
	if err != nil || !ok {
		return err
	}

	batch, err := p.pre.ParsePriceFile(path, day, bucket, mtime)
	if err != nil {
		p.finish(ctx, path, model.PriceFile, size, mtime, 0, 0, err)
		var schemaErr *model.SchemaError
		if errors.As(err, &schemaErr) {
			p.logger.Errorf("%s: price file rejected", err)
			return err
		}
		return fmt.Errorf("%w: can't parse price file %s", err, path)
	}

	for _, rowErr := range batch.RowErrors {
		p.logger.Warnf("%s: skipped row in %s", rowErr, filepath.Base(path))
	}

	if err := p.store.InsertPriceRecords(ctx, batch.Records); err != nil {
		p.finish(ctx, path, model.PriceFile, size, mtime, batch.RowsTotal, len(batch.RowErrors), err)
		return fmt.Errorf("%w: can't persist price records from %s", err, path)
	}

	p.finish(ctx, path, model.PriceFile, size, mtime, batch.RowsTotal, len(batch.RowErrors), nil)
	p.logger.Infof("processed %s: %d price rows, %d invalid, bucket %d",
		filepath.Base(path), batch.RowsTotal, len(batch.RowErrors), bucket)

	if p.OnPricesIngested != nil {
		p.OnPricesIngested(day, bucket)
	}
	return nil
}
