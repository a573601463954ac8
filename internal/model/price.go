package model

import "time"

// Upload-hour buckets a price file can belong to. The bucket comes from the
// HHMM part of the filename, not from row timestamps.
const (
	BucketAfternoon = 15
	BucketClose     = 17
)

type PriceSourceKind string

const (
	SourcePrevSettle PriceSourceKind = "prev_settle" // previous trading day close settle
	SourceLast       PriceSourceKind = "last"        // today's afternoon last price
	SourceSettle     PriceSourceKind = "settle"      // today's close settle
)

// PriceRecord is a single market price observation, immutable once written,
// keyed by (instrument, uploaded_at).
type PriceRecord struct {
	Instrument string     `db:"instrument"`
	AssetClass AssetClass `db:"asset_class"`
	Settle     float64    `db:"settle_price"`
	Last       float64    `db:"last_price"`
	Bid        float64    `db:"bid"`
	Ask        float64    `db:"ask"`
	TradingDay time.Time  `db:"trading_day"`
	HourBucket int        `db:"hour_bucket"`
	UploadedAt time.Time  `db:"uploaded_at"`
	SourceFile string     `db:"source_file"`
}
