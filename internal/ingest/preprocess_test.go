package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	l, _, err := logger.NewZapLogger(logger.Error)
	require.NoError(t, err)
	return l
}

func newPre(t *testing.T) *Preprocessor {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return NewPreprocessor(NewResolver(), loc, testLogger(t))
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseTradeFileClassifiesRows(t *testing.T) {
	pre := newPre(t)
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)

	path := writeFile(t, "trades_20240312.csv",
		"tradeId,instrumentName,marketTradeTime,buySell,quantity,price\n"+
			"t1,ZBH4,2024-03-12 09:30:00,B,10,118.5\n"+
			"t2,ZBH4,2024-03-12 10:00:00,S,4,118.75\n"+
			"t3,ZBH4,2024-03-12 00:00:00,B,25,117.0\n"+ // SOD carry-over
			"t4,ZBH4 C120,2024-03-12 11:00:00,S,2,0\n"+ // option exercise
			"t5,##bad##,2024-03-12 11:30:00,B,1,100\n"+ // unresolvable symbol
			"t6,ZBH4,not-a-time,B,1,100\n"+ // bad row, skipped
			"t7,ZBH4,2024-03-12 12:00:00,X,1,100\n") // bad side, skipped

	batch, err := pre.ParseTradeFile(path, day)
	require.NoError(t, err)

	assert.Equal(t, 7, batch.RowsTotal)
	require.Len(t, batch.Trades, 5)
	require.Len(t, batch.RowErrors, 2)

	byID := make(map[string]model.Trade)
	for _, tr := range batch.Trades {
		byID[tr.ID] = tr
		// trading day always comes from the filename
		assert.True(t, tr.TradingDay.Equal(day), tr.ID)
	}

	assert.Equal(t, model.Regular, byID["t1"].Kind)
	assert.InDelta(t, 10.0, byID["t1"].Quantity, 1e-9)

	assert.Equal(t, model.Regular, byID["t2"].Kind)
	assert.InDelta(t, -4.0, byID["t2"].Quantity, 1e-9) // sell is negative

	assert.Equal(t, model.StartOfDay, byID["t3"].Kind)
	assert.Equal(t, model.Exercise, byID["t4"].Kind)
	assert.Equal(t, model.Option, byID["t4"].AssetClass)
	assert.Equal(t, model.Unresolved, byID["t5"].Kind)
}

func TestParseTradeFileSynthesizesMissingIDs(t *testing.T) {
	pre := newPre(t)
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	content := "tradeId,instrumentName,marketTradeTime,buySell,quantity,price\n" +
		",ZBH4,2024-03-12 00:00:00,B,25,117.0\n"

	batch, err := pre.ParseTradeFile(writeFile(t, "trades_20240312.csv", content), day)
	require.NoError(t, err)
	require.Len(t, batch.Trades, 1)
	assert.NotEmpty(t, batch.Trades[0].ID)

	// same row, same id: reprocessing must not mint a new trade
	again, err := pre.ParseTradeFile(writeFile(t, "trades_20240312.csv", content), day)
	require.NoError(t, err)
	require.Len(t, again.Trades, 1)
	assert.Equal(t, batch.Trades[0].ID, again.Trades[0].ID)
}

func TestParseTradeFileMissingColumnRejectsWholeFile(t *testing.T) {
	pre := newPre(t)
	path := writeFile(t, "trades_20240312.csv",
		"tradeId,instrumentName,buySell,quantity,price\n"+
			"t1,ZBH4,B,10,118.5\n")

	_, err := pre.ParseTradeFile(path, time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)

	var schemaErr *model.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Missing, "markettradetime")
}

func TestParsePriceFile(t *testing.T) {
	pre := newPre(t)
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	uploaded := time.Date(2024, 3, 12, 17, 5, 0, 0, time.UTC)

	path := writeFile(t, "market_prices_20240312_1700.csv",
		"symbol,settlePrice,lastPrice,bid,ask,strike\n"+
			"ZBH4,118.25,118.3,118.2,118.35,\n"+
			"ZBH4 C120,0.8125,0.82,,,120\n"+
			"BADPRICE,abc,1.0,,,\n")

	batch, err := pre.ParsePriceFile(path, day, 17, uploaded)
	require.NoError(t, err)

	assert.Equal(t, 3, batch.RowsTotal)
	require.Len(t, batch.Records, 2)
	require.Len(t, batch.RowErrors, 1)

	fut := batch.Records[0]
	assert.Equal(t, "ZBH4", fut.Instrument)
	assert.Equal(t, model.Future, fut.AssetClass)
	assert.InDelta(t, 118.25, fut.Settle, 1e-9)
	assert.Equal(t, 17, fut.HourBucket)
	assert.True(t, fut.UploadedAt.Equal(uploaded))

	opt := batch.Records[1]
	assert.Equal(t, model.Option, opt.AssetClass)
	assert.InDelta(t, 0.82, opt.Last, 1e-9)
}

func TestParsePriceFileMissingColumnRejectsWholeFile(t *testing.T) {
	pre := newPre(t)
	path := writeFile(t, "market_prices_20240312_1500.csv",
		"symbol,lastPrice\nZBH4,118.3\n")

	_, err := pre.ParsePriceFile(path, time.Now(), 15, time.Now())
	var schemaErr *model.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Missing, "settleprice")
}
