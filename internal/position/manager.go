package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bondesk/pnl-ledger/internal/fifo"
	"github.com/bondesk/pnl-ledger/internal/ledger"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/bondesk/pnl-ledger/internal/tools"
)

// Store is the slice of the ledger store the manager mutates and replays.
type Store interface {
	SaveTradeResult(ctx context.Context, t model.Trade, p model.Position, closed bool) error
	SaveAuditTrade(ctx context.Context, t model.Trade) error
	UpdatePositionMark(ctx context.Context, p model.Position) error
	TakeSnapshot(ctx context.Context, kind model.SnapshotKind, ts time.Time) (int, error)
	UpsertDailySummary(ctx context.Context, d model.DailySummary) error
	ListPositions(ctx context.Context) ([]model.Position, error)
	TradesInOrder(ctx context.Context) ([]model.Trade, error)
}

// PriceSource resolves the authoritative market price for an instant.
type PriceSource interface {
	GetPrice(ctx context.Context, instrument string, asOf time.Time) (float64, model.PriceSourceKind, error)
}

// Manager owns the current-position cache and the per-instrument FIFO books.
// It is constructed once with an injected store handle and passed to the
// workers that need it; there is no global instance. Trade mutation is
// serialized per instrument: the book spans trading days, so two files for
// different days still contend on the same lock and replay order is the only
// order the books ever see.
type Manager struct {
	store  Store
	prices PriceSource
	logger logger.Logger

	mu        sync.RWMutex
	books     map[string]*fifo.Book
	positions map[string]model.Position

	keysMu   sync.Mutex
	keyLocks map[string]*sync.Mutex
}

func NewManager(store Store, prices PriceSource, logger logger.Logger) *Manager {
	return &Manager{
		store:     store,
		prices:    prices,
		logger:    logger,
		books:     make(map[string]*fifo.Book),
		positions: make(map[string]model.Position),
		keyLocks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lockInstrument(instrument string) *sync.Mutex {
	m.keysMu.Lock()
	defer m.keysMu.Unlock()
	l, ok := m.keyLocks[instrument]
	if !ok {
		l = &sync.Mutex{}
		m.keyLocks[instrument] = l
	}
	return l
}

// Rebuild replays the persisted trade log into fresh FIFO books and loads
// the committed live positions into the cache. Called once at startup.
func (m *Manager) Rebuild(ctx context.Context) error {
	trades, err := m.store.TradesInOrder(ctx)
	if err != nil {
		return fmt.Errorf("%w: can't load trade log", err)
	}
	fifo.SortTrades(trades)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.books = make(map[string]*fifo.Book)
	for _, t := range trades {
		if t.Kind != model.Regular {
			continue
		}
		b, ok := m.books[t.Instrument]
		if !ok {
			b = fifo.NewBook(t.Instrument, t.AssetClass)
			m.books[t.Instrument] = b
		}
		res, err := b.Apply(t)
		if err != nil {
			return fmt.Errorf("%w: replay failed at trade %s", err, t.ID)
		}
		if res.Quantity == 0 {
			// closed position: a later trade starts a fresh book
			delete(m.books, t.Instrument)
		}
	}

	positions, err := m.store.ListPositions(ctx)
	if err != nil {
		return fmt.Errorf("%w: can't load live positions", err)
	}
	m.positions = make(map[string]model.Position, len(positions))
	for _, p := range positions {
		m.positions[p.Instrument] = p
	}

	m.logger.Infof("rebuilt %d books, %d live positions from %d trades", len(m.books), len(m.positions), len(trades))
	return nil
}

// ProcessTrade runs one trade through the FIFO engine and persists trade
// and position atomically. SOD and exercise rows bypass matching but are
// still appended to the log for audit. A position whose quantity returns to
// zero leaves the live table; its realized P&L is preserved in history.
func (m *Manager) ProcessTrade(ctx context.Context, t model.Trade) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("%w: invalid trade", err)
	}

	if t.Kind != model.Regular {
		if err := m.store.SaveAuditTrade(ctx, t); err != nil {
			if errors.Is(err, ledger.ErrDuplicateTrade) {
				return nil
			}
			return fmt.Errorf("%w: can't record %s trade %s", err, t.Kind, t.ID)
		}
		m.logger.Debugf("recorded %s trade %s for audit, no matching", t.Kind, t.ID)
		return nil
	}

	lock := m.lockInstrument(t.Instrument)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	book, ok := m.books[t.Instrument]
	if !ok {
		book = fifo.NewBook(t.Instrument, t.AssetClass)
		m.books[t.Instrument] = book
	}
	prev := m.positions[t.Instrument]
	m.mu.Unlock()

	// the store is the source of truth; keep the book untouched unless the
	// write commits
	undo := book.Clone()

	res, err := book.Apply(t)
	if err != nil {
		return err
	}

	pos := model.Position{
		Instrument:    t.Instrument,
		AssetClass:    t.AssetClass,
		Quantity:      res.Quantity,
		AvgCost:       res.AvgCost,
		RealizedPnL:   res.TotalRealized,
		UnrealizedPnL: prev.UnrealizedPnL,
		LastPrice:     prev.LastPrice,
		PriceStale:    prev.PriceStale,
		TradingDay:    t.TradingDay,
		UpdatedAt:     time.Now().UTC(),
	}
	closed := res.Quantity == 0

	if err := m.store.SaveTradeResult(ctx, t, pos, closed); err != nil {
		m.restoreBook(t.Instrument, undo)
		if errors.Is(err, ledger.ErrDuplicateTrade) {
			m.logger.Warnf("trade %s/%s already persisted, skipping", t.ID, t.TradingDay.Format("20060102"))
			return nil
		}
		return fmt.Errorf("%w: can't persist trade %s", err, t.ID)
	}

	m.mu.Lock()
	if closed {
		delete(m.positions, t.Instrument)
		delete(m.books, t.Instrument)
	} else {
		m.positions[t.Instrument] = pos
	}
	m.mu.Unlock()

	m.logger.Debugf("trade %s %s qty %f @ %f: realized %f, position %f avg %f",
		t.ID, t.Instrument, t.Quantity, t.Price, res.Realized, res.Quantity, res.AvgCost)
	return nil
}

func (m *Manager) restoreBook(instrument string, undo *fifo.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[instrument] = undo
}

// UpdateMarketPrices marks every live position against the authoritative
// price for asOf. A missing price keeps the prior unrealized value and only
// flips the staleness flag; it is logged, never escalated.
func (m *Manager) UpdateMarketPrices(ctx context.Context, asOf time.Time) error {
	m.mu.RLock()
	open := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		open = append(open, p)
	}
	m.mu.RUnlock()

	for _, p := range open {
		price, kind, err := m.prices.GetPrice(ctx, p.Instrument, asOf)
		switch {
		case errors.Is(err, model.ErrPriceNotFound):
			m.logger.Warnf("no price for %s as of %s, unrealized pnl stale", p.Instrument, asOf)
			p.PriceStale = true
		case err != nil:
			return fmt.Errorf("%w: price lookup failed for %s", err, p.Instrument)
		default:
			places := p.AssetClass.PnLPlaces()
			p.LastPrice = price
			p.UnrealizedPnL = tools.MulRound(tools.Round(price-p.AvgCost, places), p.Quantity, places)
			p.PriceStale = false
			m.logger.Debugf("marked %s at %f (%s): unrealized %f", p.Instrument, price, kind, p.UnrealizedPnL)
		}
		p.UpdatedAt = time.Now().UTC()

		if err := m.store.UpdatePositionMark(ctx, p); err != nil {
			return fmt.Errorf("%w: can't persist mark for %s", err, p.Instrument)
		}
		// merge only the mark fields: a trade may have committed since the
		// snapshot and its quantity/avg-cost/realized must survive this pass
		m.mu.Lock()
		if cur, ok := m.positions[p.Instrument]; ok {
			cur.LastPrice = p.LastPrice
			cur.UnrealizedPnL = p.UnrealizedPnL
			cur.PriceStale = p.PriceStale
			cur.UpdatedAt = p.UpdatedAt
			m.positions[p.Instrument] = cur
		}
		m.mu.Unlock()
	}
	return nil
}

// TakeSnapshot copies all live positions into the snapshot table in one
// transaction.
func (m *Manager) TakeSnapshot(ctx context.Context, kind model.SnapshotKind, ts time.Time) error {
	n, err := m.store.TakeSnapshot(ctx, kind, ts)
	if err != nil {
		return fmt.Errorf("%w: %s snapshot failed", err, kind)
	}
	m.logger.Infof("%s snapshot at %s: %d positions", kind, ts, n)
	return nil
}

// WriteDailySummaries upserts the per-instrument daily P&L rows for day.
// Idempotent: re-running a day overwrites, never duplicates.
func (m *Manager) WriteDailySummaries(ctx context.Context, day time.Time) error {
	m.mu.RLock()
	open := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		open = append(open, p)
	}
	m.mu.RUnlock()

	now := time.Now().UTC()
	for _, p := range open {
		d := model.DailySummary{
			Instrument:    p.Instrument,
			TradingDay:    day,
			RealizedPnL:   p.RealizedPnL,
			UnrealizedPnL: p.UnrealizedPnL,
			Quantity:      p.Quantity,
			UpdatedAt:     now,
		}
		if err := m.store.UpsertDailySummary(ctx, d); err != nil {
			return fmt.Errorf("%w: can't write daily summary for %s", err, p.Instrument)
		}
	}
	return nil
}

// Positions returns a copy of the live position cache.
func (m *Manager) Positions() []model.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out
}
