package ledger

import (
	"context"
	"fmt"

	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/jmoiron/sqlx"
)

const _insertPriceRecord = `INSERT INTO price_records (
		instrument, asset_class, settle_price, last_price, bid, ask,
		trading_day, hour_bucket, uploaded_at, source_file
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	ON CONFLICT (instrument, uploaded_at) DO NOTHING`

// InsertPriceRecords writes a price file's rows in one transaction. Records
// are immutable; replays of the same file conflict on (instrument,
// uploaded_at) and are dropped silently.
func (s *Store) InsertPriceRecords(ctx context.Context, recs []model.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range recs {
			if _, err := tx.ExecContext(ctx, _insertPriceRecord,
				r.Instrument, r.AssetClass, r.Settle, r.Last, r.Bid, r.Ask,
				r.TradingDay, r.HourBucket, r.UploadedAt, r.SourceFile,
			); err != nil {
				return fmt.Errorf("%w: can't insert price record %s", err, r.Instrument)
			}
		}
		return nil
	})
}
