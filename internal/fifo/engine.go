package fifo

import (
	"fmt"
	"math"
	"sort"

	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/bondesk/pnl-ledger/internal/tools"
)

// quantities are contract counts but arrive as CSV floats; matching keeps
// them quantized so a fully consumed lot compares exactly to zero
const _qtyPlaces = 9

// Book holds the FIFO lot queue and cumulative realized P&L for one
// instrument. All lots share the same sign at all times: a buy first closes
// short lots oldest-first, a sell first closes long lots, and only the
// remainder opens a new lot. It is not safe for concurrent use; the position
// manager serializes access per (instrument, trading day).
type Book struct {
	instrument string
	class      model.AssetClass

	lots     []model.Lot
	realized float64
}

// Result is the outcome of applying a single trade.
type Result struct {
	Realized      float64 // realized P&L of this trade alone
	TotalRealized float64 // cumulative realized P&L of the book
	Quantity      float64 // net position after the trade
	AvgCost       float64 // quantity-weighted mean price of remaining lots
}

func NewBook(instrument string, class model.AssetClass) *Book {
	return &Book{
		instrument: instrument,
		class:      class,
	}
}

// Apply matches the trade against the queue. Every P&L amount is rounded to
// the asset-class precision immediately after each arithmetic step, not at
// the end.
func (b *Book) Apply(t model.Trade) (Result, error) {
	if err := t.Validate(); err != nil {
		return Result{}, fmt.Errorf("%w: trade rejected", err)
	}
	if t.Instrument != b.instrument {
		return Result{}, fmt.Errorf("trade %s instrument %s doesn't belong to book %s", t.ID, t.Instrument, b.instrument)
	}

	places := b.class.PnLPlaces()
	remaining := t.Quantity
	var realized float64

	for len(b.lots) > 0 && remaining != 0 && b.lots[0].Quantity*remaining < 0 {
		lot := &b.lots[0]
		matched := math.Min(math.Abs(remaining), math.Abs(lot.Quantity))

		// buy closing shorts earns (short entry - buy price) per unit,
		// sell closing longs earns (sell price - long entry)
		perUnit := t.Price - lot.Price
		if remaining > 0 {
			perUnit = lot.Price - t.Price
		}
		realized = tools.Round(realized+tools.MulRound(perUnit, matched, places), places)

		if remaining > 0 {
			lot.Quantity = tools.Round(lot.Quantity+matched, _qtyPlaces)
			remaining = tools.Round(remaining-matched, _qtyPlaces)
		} else {
			lot.Quantity = tools.Round(lot.Quantity-matched, _qtyPlaces)
			remaining = tools.Round(remaining+matched, _qtyPlaces)
		}
		if lot.Quantity == 0 {
			b.lots = b.lots[1:]
		}
	}

	// cross-through-zero: whatever the opposite lots didn't absorb opens a
	// fresh lot at the trade price
	if remaining != 0 {
		b.lots = append(b.lots, model.Lot{
			Instrument: b.instrument,
			Quantity:   remaining,
			Price:      t.Price,
			AcquiredAt: t.MarketTime,
			TradeID:    t.ID,
		})
	}

	b.realized = tools.Round(b.realized+realized, places)
	return Result{
		Realized:      realized,
		TotalRealized: b.realized,
		Quantity:      b.Quantity(),
		AvgCost:       b.AvgCost(),
	}, nil
}

// Quantity is the net signed sum of remaining lot quantities.
func (b *Book) Quantity() float64 {
	var q float64
	for _, lot := range b.lots {
		q = tools.Round(q+lot.Quantity, _qtyPlaces)
	}
	return q
}

// AvgCost is the quantity-weighted mean entry price of the remaining lots,
// zero for an empty book.
func (b *Book) AvgCost() float64 {
	weights := make([]float64, 0, len(b.lots))
	values := make([]float64, 0, len(b.lots))
	for _, lot := range b.lots {
		weights = append(weights, math.Abs(lot.Quantity))
		values = append(values, lot.Price)
	}
	return tools.WeightedAvg(weights, values, b.class.PnLPlaces())
}

func (b *Book) RealizedPnL() float64 {
	return b.realized
}

// Clone returns a deep copy of the book, used to roll a book back when the
// accompanying store write fails.
func (b *Book) Clone() *Book {
	lots := make([]model.Lot, len(b.lots))
	copy(lots, b.lots)
	return &Book{
		instrument: b.instrument,
		class:      b.class,
		lots:       lots,
		realized:   b.realized,
	}
}

// Lots returns a copy of the remaining queue in FIFO order.
func (b *Book) Lots() []model.Lot {
	out := make([]model.Lot, len(b.lots))
	copy(out, b.lots)
	return out
}

// SortTrades orders trades for replay: market time ascending, ties broken by
// trade id so the queue order is deterministic.
func SortTrades(trades []model.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		if trades[i].MarketTime.Equal(trades[j].MarketTime) {
			return trades[i].ID < trades[j].ID
		}
		return trades[i].MarketTime.Before(trades[j].MarketTime)
	})
}
