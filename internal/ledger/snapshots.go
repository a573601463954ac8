package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bondesk/pnl-ledger/internal/model"
)

// One INSERT..SELECT so a snapshot is all-or-nothing: either every live
// position is copied or none is.
const _takeSnapshot = `INSERT INTO position_snapshots (
		kind, taken_at, instrument, asset_class, quantity,
		avg_cost, realized_pnl, unrealized_pnl, last_price
	)
	SELECT $1, $2, instrument, asset_class, quantity,
		avg_cost, realized_pnl, unrealized_pnl, last_price
	FROM positions`

// TakeSnapshot copies every live position into the snapshot table tagged
// with kind and ts. Returns the number of rows captured.
func (s *Store) TakeSnapshot(ctx context.Context, kind model.SnapshotKind, ts time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, _takeSnapshot, kind, ts)
	if err != nil {
		return 0, fmt.Errorf("%w: can't take %s snapshot", err, kind)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: can't read snapshot row count", err)
	}
	return int(n), nil
}

const _upsertDailySummary = `INSERT INTO daily_summaries (
		instrument, trading_day, realized_pnl, unrealized_pnl, quantity, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6)
	ON CONFLICT (instrument, trading_day)
	DO UPDATE SET
		realized_pnl = EXCLUDED.realized_pnl,
		unrealized_pnl = EXCLUDED.unrealized_pnl,
		quantity = EXCLUDED.quantity,
		updated_at = EXCLUDED.updated_at`

// UpsertDailySummary is keyed by (instrument, trading_day) so re-running a
// day's recalculation never duplicates rows.
func (s *Store) UpsertDailySummary(ctx context.Context, d model.DailySummary) error {
	if _, err := s.db.ExecContext(ctx, _upsertDailySummary,
		d.Instrument, d.TradingDay, d.RealizedPnL, d.UnrealizedPnL, d.Quantity, d.UpdatedAt,
	); err != nil {
		return fmt.Errorf("%w: can't upsert daily summary %s %s", err, d.Instrument, d.TradingDay.Format("2006-01-02"))
	}
	return nil
}
