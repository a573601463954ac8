package fifo

import (
	"fmt"
	"testing"
	"time"

	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trade(id string, qty, price float64) model.Trade {
	return model.Trade{
		ID:         id,
		Instrument: "ZB",
		AssetClass: model.Future,
		Quantity:   qty,
		Price:      price,
		MarketTime: time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC),
	}
}

func TestExactCloseRoundTrip(t *testing.T) {
	b := NewBook("ZB", model.Future)

	_, err := b.Apply(trade("t1", 10, 100.0))
	require.NoError(t, err)

	res, err := b.Apply(trade("t2", -10, 110.0))
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res.Realized, 1e-5)
	assert.Zero(t, res.Quantity)
	assert.Empty(t, b.Lots())
}

func TestFIFOOrdering(t *testing.T) {
	b := NewBook("ZB", model.Future)

	_, err := b.Apply(trade("t1", 10, 100.0))
	require.NoError(t, err)
	_, err = b.Apply(trade("t2", 5, 105.0))
	require.NoError(t, err)

	res, err := b.Apply(trade("t3", -5, 110.0))
	require.NoError(t, err)

	assert.InDelta(t, 50.0, res.Realized, 1e-5)
	assert.InDelta(t, 10.0, res.Quantity, 1e-9)
	assert.InDelta(t, 102.5, res.AvgCost, 1e-5)

	// oldest lot was consumed first: 5 left of t1, all of t2
	lots := b.Lots()
	require.Len(t, lots, 2)
	assert.Equal(t, "t1", lots[0].TradeID)
	assert.InDelta(t, 5.0, lots[0].Quantity, 1e-9)
	assert.Equal(t, "t2", lots[1].TradeID)
}

func TestCrossThroughZero(t *testing.T) {
	b := NewBook("ZB", model.Future)

	_, err := b.Apply(trade("t1", 10, 100.0))
	require.NoError(t, err)

	// sell 15 against 10 long: closes the queue and opens a 5-lot short
	res, err := b.Apply(trade("t2", -15, 104.0))
	require.NoError(t, err)

	assert.InDelta(t, 40.0, res.Realized, 1e-5)
	assert.InDelta(t, -5.0, res.Quantity, 1e-9)
	assert.InDelta(t, 104.0, res.AvgCost, 1e-5)

	lots := b.Lots()
	require.Len(t, lots, 1)
	assert.InDelta(t, -5.0, lots[0].Quantity, 1e-9)
}

func TestShortCoverSymmetry(t *testing.T) {
	b := NewBook("ZB", model.Future)

	_, err := b.Apply(trade("t1", -10, 110.0))
	require.NoError(t, err)

	res, err := b.Apply(trade("t2", 10, 100.0))
	require.NoError(t, err)

	assert.InDelta(t, 100.0, res.Realized, 1e-5)
	assert.Zero(t, res.Quantity)
}

func TestLotConservationOverPrefixes(t *testing.T) {
	trades := []model.Trade{
		trade("t01", 10, 100),
		trade("t02", -4, 101.5),
		trade("t03", 7, 99.25),
		trade("t04", -20, 100.75),
		trade("t05", -3, 100.5),
		trade("t06", 30, 101),
		trade("t07", -20, 101.125),
		trade("t08", 0.5, 100),
		trade("t09", -0.5, 99),
		trade("t10", 12, 98.5),
	}

	b := NewBook("ZB", model.Future)
	var net float64
	for i, tr := range trades {
		net += tr.Quantity
		res, err := b.Apply(tr)
		require.NoError(t, err)
		assert.InDelta(t, net, res.Quantity, 1e-9, "prefix %d", i+1)

		var lotSum float64
		for _, lot := range b.Lots() {
			lotSum += lot.Quantity
		}
		assert.InDelta(t, net, lotSum, 1e-9, "prefix %d", i+1)
	}
}

func TestAllLotsShareSign(t *testing.T) {
	b := NewBook("ZB", model.Future)
	seq := []model.Trade{
		trade("t1", 5, 100),
		trade("t2", -8, 101),
		trade("t3", -2, 102),
		trade("t4", 12, 100.5),
	}
	for _, tr := range seq {
		_, err := b.Apply(tr)
		require.NoError(t, err)
		lots := b.Lots()
		for i := 1; i < len(lots); i++ {
			assert.True(t, lots[i].Quantity*lots[0].Quantity > 0)
		}
	}
}

func TestOptionRounding(t *testing.T) {
	b := NewBook("ZBH4 C120", model.Option)
	tr := trade("t1", 3, 1.00015)
	tr.Instrument = "ZBH4 C120"
	tr.AssetClass = model.Option
	_, err := b.Apply(tr)
	require.NoError(t, err)

	closeTr := trade("t2", -3, 1.00035)
	closeTr.Instrument = "ZBH4 C120"
	closeTr.AssetClass = model.Option
	res, err := b.Apply(closeTr)
	require.NoError(t, err)

	// (1.00035-1.00015)*3 = 0.0006, representable at 4 places
	assert.InDelta(t, 0.0006, res.Realized, 1e-9)
}

func TestRejectsInvalidTrades(t *testing.T) {
	b := NewBook("ZB", model.Future)

	_, err := b.Apply(trade("t1", 0, 100))
	assert.Error(t, err)

	_, err = b.Apply(trade("t2", 1, -5))
	assert.Error(t, err)

	wrong := trade("t3", 1, 100)
	wrong.Instrument = "ES"
	_, err = b.Apply(wrong)
	assert.Error(t, err)
}

func TestSortTradesTieBreak(t *testing.T) {
	ts := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	trades := []model.Trade{
		{ID: "b", MarketTime: ts},
		{ID: "a", MarketTime: ts},
		{ID: "c", MarketTime: ts.Add(-time.Second)},
	}
	SortTrades(trades)
	var got []string
	for _, tr := range trades {
		got = append(got, tr.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, got)
}

func TestRepeatedPartialClosesNoDrift(t *testing.T) {
	b := NewBook("ZB", model.Future)
	_, err := b.Apply(trade("open", 100, 100.12345))
	require.NoError(t, err)

	var total float64
	for i := 0; i < 100; i++ {
		res, err := b.Apply(trade(fmt.Sprintf("c%03d", i), -1, 100.54321))
		require.NoError(t, err)
		total = res.TotalRealized
	}
	// 100 * (100.54321-100.12345) = 41.976 exactly at 5 places
	assert.InDelta(t, 41.976, total, 1e-5)
	assert.Zero(t, b.Quantity())
}
