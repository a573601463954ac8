package model

import "time"

// SummaryRow is one line of the position summary query: the live position
// joined against the day's SOD snapshot so callers see the intraday delta.
type SummaryRow struct {
	Position
	SODRealizedPnL   float64 `db:"sod_realized_pnl"`
	SODUnrealizedPnL float64 `db:"sod_unrealized_pnl"`
	IntradayPnL      float64 `db:"intraday_pnl"`
	AsOf             time.Time
}
