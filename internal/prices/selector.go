package prices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/jmoiron/sqlx"
)

// Window is the (trading day, upload-hour bucket) pair that holds the
// authoritative price for some instant.
type Window struct {
	Day    time.Time
	Bucket int
	Kind   model.PriceSourceKind
}

// Selector picks the authoritative market price for an instrument at a given
// instant. Three regimes against the trading-day clock:
//
//	before the afternoon cutoff: previous trading day's close settle (bucket 17)
//	afternoon cutoff..close cutoff: today's afternoon last price (bucket 15)
//	past the close cutoff: today's close settle (bucket 17)
type Selector struct {
	db     *sqlx.DB
	cal    *calendar.Calendar
	logger logger.Logger
}

func NewSelector(db *sqlx.DB, cal *calendar.Calendar, logger logger.Logger) *Selector {
	return &Selector{
		db:     db,
		cal:    cal,
		logger: logger,
	}
}

// WindowFor resolves the regime for asOf. Pure; the store isn't touched.
func (s *Selector) WindowFor(asOf time.Time) Window {
	local := asOf.In(s.cal.Location())
	day := s.cal.Date(local)

	switch {
	case local.Hour() < s.cal.AfternoonCutoffHour():
		return Window{Day: s.cal.PrevTradingDay(day), Bucket: model.BucketClose, Kind: model.SourcePrevSettle}
	case local.Hour() < s.cal.CloseCutoffHour():
		return Window{Day: day, Bucket: model.BucketAfternoon, Kind: model.SourceLast}
	default:
		return Window{Day: day, Bucket: model.BucketClose, Kind: model.SourceSettle}
	}
}

const _queryLatestPrice = `SELECT instrument, asset_class, settle_price, last_price, bid, ask, trading_day, hour_bucket, uploaded_at, source_file
	FROM price_records
	WHERE instrument = $1 AND trading_day = $2 AND hour_bucket = $3
	ORDER BY uploaded_at DESC
	LIMIT 1`

// GetPrice returns the price for the instrument at asOf, or
// model.ErrPriceNotFound when no record matches the window. Callers decide
// the fallback; missing prices are not an error condition here.
func (s *Selector) GetPrice(ctx context.Context, instrument string, asOf time.Time) (float64, model.PriceSourceKind, error) {
	w := s.WindowFor(asOf)

	var rec model.PriceRecord
	if err := s.db.GetContext(ctx, &rec, _queryLatestPrice, instrument, w.Day, w.Bucket); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, w.Kind, model.ErrPriceNotFound
		}
		return 0, w.Kind, fmt.Errorf("query price record: %w", err)
	}

	price := rec.Settle
	if w.Kind == model.SourceLast {
		price = rec.Last
	}
	s.logger.Debugf("price %s as of %s: %f (%s %s bucket %d)",
		instrument, asOf, price, w.Kind, w.Day.Format("2006-01-02"), w.Bucket)
	return price, w.Kind, nil
}
