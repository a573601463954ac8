package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bondesk/pnl-ledger/internal/model"
)

const (
	_queryPositions = `SELECT instrument, asset_class, quantity, avg_cost, realized_pnl,
			unrealized_pnl, last_price, price_stale, trading_day, updated_at
		FROM positions ORDER BY instrument`

	_queryTradesInOrder = `SELECT trade_id, instrument, asset_class, quantity, price,
			market_time, trading_day, kind, source_file
		FROM trades ORDER BY market_time, trade_id`

	_queryTradeHistory = `SELECT trade_id, instrument, asset_class, quantity, price,
			market_time, trading_day, kind, source_file
		FROM trades ORDER BY market_time DESC, trade_id DESC LIMIT $1`

	_queryDailyPnL = `SELECT instrument, trading_day, realized_pnl, unrealized_pnl, quantity, updated_at
		FROM daily_summaries ORDER BY trading_day DESC, instrument`

	_queryHistoricalRealized = `SELECT COALESCE(SUM(realized_pnl), 0)
		FROM position_history WHERE instrument = $1`

	// live positions joined against the most recent SOD snapshot taken on or
	// before asOf, so callers see the intraday delta per instrument
	_querySummary = `SELECT p.instrument, p.asset_class, p.quantity, p.avg_cost, p.realized_pnl,
			p.unrealized_pnl, p.last_price, p.price_stale, p.trading_day, p.updated_at,
			COALESCE(s.realized_pnl, 0) AS sod_realized_pnl,
			COALESCE(s.unrealized_pnl, 0) AS sod_unrealized_pnl,
			(p.realized_pnl + p.unrealized_pnl) - COALESCE(s.realized_pnl + s.unrealized_pnl, 0) AS intraday_pnl
		FROM positions p
		LEFT JOIN LATERAL (
			SELECT realized_pnl, unrealized_pnl
			FROM position_snapshots
			WHERE instrument = p.instrument AND kind = 'SOD' AND taken_at <= $1
			ORDER BY taken_at DESC LIMIT 1
		) s ON TRUE
		ORDER BY p.instrument`
)

// ListPositions returns every live (open) position.
func (s *Store) ListPositions(ctx context.Context) ([]model.Position, error) {
	var out []model.Position
	if err := s.db.SelectContext(ctx, &out, _queryPositions); err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	return out, nil
}

// TradesInOrder returns the whole trade log in replay order
// (market time ascending, ties by trade id).
func (s *Store) TradesInOrder(ctx context.Context) ([]model.Trade, error) {
	var out []model.Trade
	if err := s.db.SelectContext(ctx, &out, _queryTradesInOrder); err != nil {
		return nil, fmt.Errorf("query trade log: %w", err)
	}
	return out, nil
}

// TradeHistory returns the most recent limit trades.
func (s *Store) TradeHistory(ctx context.Context, limit int) ([]model.Trade, error) {
	var out []model.Trade
	if err := s.db.SelectContext(ctx, &out, _queryTradeHistory, limit); err != nil {
		return nil, fmt.Errorf("query trade history: %w", err)
	}
	return out, nil
}

// DailyPnLHistory returns all daily summary rows, newest day first.
func (s *Store) DailyPnLHistory(ctx context.Context) ([]model.DailySummary, error) {
	var out []model.DailySummary
	if err := s.db.SelectContext(ctx, &out, _queryDailyPnL); err != nil {
		return nil, fmt.Errorf("query daily pnl history: %w", err)
	}
	return out, nil
}

// HistoricalRealized sums the realized P&L an instrument locked in across
// closed positions. Survives zero-position pruning.
func (s *Store) HistoricalRealized(ctx context.Context, instrument string) (float64, error) {
	var total float64
	if err := s.db.GetContext(ctx, &total, _queryHistoricalRealized, instrument); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("query historical realized for %s: %w", instrument, err)
	}
	return total, nil
}

// PositionSummary returns live positions with their SOD baseline and
// intraday P&L as of the given instant.
func (s *Store) PositionSummary(ctx context.Context, asOf time.Time) ([]model.SummaryRow, error) {
	var out []model.SummaryRow
	if err := s.db.SelectContext(ctx, &out, _querySummary, asOf); err != nil {
		return nil, fmt.Errorf("query position summary: %w", err)
	}
	for i := range out {
		out[i].AsOf = asOf
	}
	return out, nil
}
