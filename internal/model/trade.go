package model

import (
	"fmt"
	"time"
)

type AssetClass string

const (
	Future AssetClass = "future"
	Option AssetClass = "option"
)

// PnLPlaces returns the number of decimal places every P&L amount of this
// asset class is quantized to after each arithmetic step.
func (a AssetClass) PnLPlaces() int32 {
	switch a {
	case Option:
		return 4
	default:
		return 5
	}
}

type TradeKind string

const (
	Regular    TradeKind = "regular"
	StartOfDay TradeKind = "sod"        // carried-over starting position, midnight timestamp
	Exercise   TradeKind = "exercise"   // option exercise/assignment, zero price
	Unresolved TradeKind = "unresolved" // symbol couldn't be normalized, audit only
)

// Trade is an immutable fact from a trade file. Quantity is signed:
// positive is a buy, negative is a sell. TradingDay comes from the filename
// of the source file, never from MarketTime.
type Trade struct {
	ID         string     `db:"trade_id"`
	Instrument string     `db:"instrument"`
	AssetClass AssetClass `db:"asset_class"`
	Quantity   float64    `db:"quantity"`
	Price      float64    `db:"price"`
	MarketTime time.Time  `db:"market_time"`
	TradingDay time.Time  `db:"trading_day"`
	Kind       TradeKind  `db:"kind"`
	SourceFile string     `db:"source_file"`
}

func (t Trade) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("empty trade id")
	}
	if t.Instrument == "" {
		return fmt.Errorf("empty instrument for trade %s", t.ID)
	}
	if t.Quantity == 0 {
		return fmt.Errorf("zero quantity for trade %s", t.ID)
	}
	if t.Price < 0 {
		return fmt.Errorf("negative price %f for trade %s", t.Price, t.ID)
	}
	return nil
}

func (t Trade) IsBuy() bool {
	return t.Quantity > 0
}
