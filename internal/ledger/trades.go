package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/jmoiron/sqlx"
)

// ErrDuplicateTrade means the (trade_id, trading_day) pair already exists in
// the append-only log. Reprocessing an unchanged file hits this and the whole
// operation becomes a no-op.
var ErrDuplicateTrade = errors.New("trade already persisted")

const (
	_insertTrade = `INSERT INTO trades (
			trade_id, instrument, asset_class, quantity, price,
			market_time, trading_day, kind, source_file
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (trade_id, trading_day) DO NOTHING`

	_upsertPosition = `INSERT INTO positions (
			instrument, asset_class, quantity, avg_cost, realized_pnl,
			unrealized_pnl, last_price, price_stale, trading_day, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (instrument)
		DO UPDATE SET
			asset_class = EXCLUDED.asset_class,
			quantity = EXCLUDED.quantity,
			avg_cost = EXCLUDED.avg_cost,
			realized_pnl = EXCLUDED.realized_pnl,
			trading_day = EXCLUDED.trading_day,
			updated_at = EXCLUDED.updated_at`

	_deletePosition = `DELETE FROM positions WHERE instrument = $1`

	_insertPositionHistory = `INSERT INTO position_history (
			instrument, asset_class, quantity, avg_cost, realized_pnl,
			unrealized_pnl, last_price, price_stale, trading_day, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
)

func insertTradeTx(tx *sqlx.Tx, ctx context.Context, t model.Trade) (bool, error) {
	res, err := tx.ExecContext(ctx, _insertTrade,
		t.ID, t.Instrument, t.AssetClass, t.Quantity, t.Price,
		t.MarketTime, t.TradingDay, t.Kind, t.SourceFile,
	)
	if err != nil {
		return false, fmt.Errorf("%w: can't insert trade %s", err, t.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: can't read rows affected", err)
	}
	return n > 0, nil
}

func upsertPositionTx(tx *sqlx.Tx, ctx context.Context, p model.Position) error {
	if _, err := tx.ExecContext(ctx, _upsertPosition,
		p.Instrument, p.AssetClass, p.Quantity, p.AvgCost, p.RealizedPnL,
		p.UnrealizedPnL, p.LastPrice, p.PriceStale, p.TradingDay, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%w: can't upsert position %s", err, p.Instrument)
	}
	return nil
}

// SaveTradeResult appends the trade and applies the new position state in
// one transaction. When closed is true the live row is removed and an audit
// copy lands in position_history, keeping cumulative realized P&L queryable.
func (s *Store) SaveTradeResult(ctx context.Context, t model.Trade, p model.Position, closed bool) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		inserted, err := insertTradeTx(tx, ctx, t)
		if err != nil {
			return err
		}
		if !inserted {
			return ErrDuplicateTrade
		}

		if closed {
			if _, err := tx.ExecContext(ctx, _deletePosition, p.Instrument); err != nil {
				return fmt.Errorf("%w: can't delete closed position %s", err, p.Instrument)
			}
			if _, err := tx.ExecContext(ctx, _insertPositionHistory,
				p.Instrument, p.AssetClass, p.Quantity, p.AvgCost, p.RealizedPnL,
				p.UnrealizedPnL, p.LastPrice, p.PriceStale, p.TradingDay, p.UpdatedAt,
			); err != nil {
				return fmt.Errorf("%w: can't insert position history %s", err, p.Instrument)
			}
			return nil
		}
		return upsertPositionTx(tx, ctx, p)
	})
}

// SaveAuditTrade records a trade that bypasses matching (SOD carry-over and
// exercise rows, or trades with unresolvable symbols).
func (s *Store) SaveAuditTrade(ctx context.Context, t model.Trade) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := insertTradeTx(tx, ctx, t); err != nil {
			return err
		}
		return nil
	})
}

const _updatePositionMark = `UPDATE positions
	SET last_price = $2, unrealized_pnl = $3, price_stale = $4, updated_at = $5
	WHERE instrument = $1`

// UpdatePositionMark writes the mark-to-market fields of a live position.
func (s *Store) UpdatePositionMark(ctx context.Context, p model.Position) error {
	if _, err := s.db.ExecContext(ctx, _updatePositionMark,
		p.Instrument, p.LastPrice, p.UnrealizedPnL, p.PriceStale, p.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%w: can't update mark for %s", err, p.Instrument)
	}
	return nil
}
