package model

import "time"

// Lot is a FIFO inventory parcel. Quantity keeps the sign of the opening
// trade; all lots of one instrument share the same sign at all times.
type Lot struct {
	Instrument string
	Quantity   float64
	Price      float64
	AcquiredAt time.Time
	TradeID    string
}

// Position is the derived aggregate per instrument, cached by the position
// manager and persisted in the live table. A position whose quantity returns
// to exactly zero is removed from the live table; its realized P&L survives
// in the history table.
type Position struct {
	Instrument    string     `db:"instrument"`
	AssetClass    AssetClass `db:"asset_class"`
	Quantity      float64    `db:"quantity"`
	AvgCost       float64    `db:"avg_cost"`
	RealizedPnL   float64    `db:"realized_pnl"`
	UnrealizedPnL float64    `db:"unrealized_pnl"`
	LastPrice     float64    `db:"last_price"`
	PriceStale    bool       `db:"price_stale"`
	TradingDay    time.Time  `db:"trading_day"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

type SnapshotKind string

const (
	SnapshotSOD SnapshotKind = "SOD"
	SnapshotEOD SnapshotKind = "EOD"
)

// PositionSnapshot is an immutable point-in-time copy of a live position,
// written only by the snapshot operation.
type PositionSnapshot struct {
	Kind          SnapshotKind `db:"kind"`
	TakenAt       time.Time    `db:"taken_at"`
	Instrument    string       `db:"instrument"`
	AssetClass    AssetClass   `db:"asset_class"`
	Quantity      float64      `db:"quantity"`
	AvgCost       float64      `db:"avg_cost"`
	RealizedPnL   float64      `db:"realized_pnl"`
	UnrealizedPnL float64      `db:"unrealized_pnl"`
	LastPrice     float64      `db:"last_price"`
}

// DailySummary is the per-instrument-per-day P&L row, upserted so that
// recalculation of a day is idempotent.
type DailySummary struct {
	Instrument    string    `db:"instrument"`
	TradingDay    time.Time `db:"trading_day"`
	RealizedPnL   float64   `db:"realized_pnl"`
	UnrealizedPnL float64   `db:"unrealized_pnl"`
	Quantity      float64   `db:"quantity"`
	UpdatedAt     time.Time `db:"updated_at"`
}
