package ingest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memFileStore struct {
	records map[string]model.FileRecord
	prices  []model.PriceRecord
}

func newMemFileStore() *memFileStore {
	return &memFileStore{records: make(map[string]model.FileRecord)}
}

func (s *memFileStore) GetFileRecord(_ context.Context, path string) (*model.FileRecord, error) {
	fr, ok := s.records[path]
	if !ok {
		return nil, nil
	}
	return &fr, nil
}

func (s *memFileStore) UpsertFileRecord(_ context.Context, fr model.FileRecord) error {
	s.records[fr.Path] = fr
	return nil
}

func (s *memFileStore) InsertPriceRecords(_ context.Context, recs []model.PriceRecord) error {
	s.prices = append(s.prices, recs...)
	return nil
}

type memSink struct {
	trades []model.Trade
}

func (s *memSink) ProcessTrade(_ context.Context, t model.Trade) error {
	s.trades = append(s.trades, t)
	return nil
}

func newTestProcessor(t *testing.T) (*Processor, *memFileStore, *memSink) {
	t.Helper()
	store := newMemFileStore()
	sink := &memSink{}
	return NewProcessor(store, newPre(t), sink, 600, testLogger(t)), store, sink
}

const _tradeCSV = "tradeId,instrumentName,marketTradeTime,buySell,quantity,price\n" +
	"t2,ZBH4,2024-03-12 10:00:00,B,5,118.6\n" +
	"t1,ZBH4,2024-03-12 09:30:00,B,10,118.5\n"

func TestProcessFileIdempotent(t *testing.T) {
	ctx := context.Background()
	p, store, sink := newTestProcessor(t)

	path := writeFile(t, "trades_20240312.csv", _tradeCSV)

	require.NoError(t, p.ProcessFile(ctx, path))
	require.Len(t, sink.trades, 2)
	assert.Equal(t, model.FileCompleted, store.records[path].Status)
	assert.Equal(t, 2, store.records[path].RowsTotal)

	// unchanged fingerprint: second pass is a no-op
	require.NoError(t, p.ProcessFile(ctx, path))
	assert.Len(t, sink.trades, 2)
}

func TestProcessFileReprocessesOnChange(t *testing.T) {
	ctx := context.Background()
	p, _, sink := newTestProcessor(t)

	path := writeFile(t, "trades_20240312.csv", _tradeCSV)
	require.NoError(t, p.ProcessFile(ctx, path))
	require.Len(t, sink.trades, 2)

	appended := _tradeCSV + "t3,ZBH4,2024-03-12 11:00:00,S,3,118.7\n"
	require.NoError(t, os.WriteFile(path, []byte(appended), 0o644))

	require.NoError(t, p.ProcessFile(ctx, path))
	// whole file replayed; the position manager dedupes by trade id
	assert.Len(t, sink.trades, 5)
}

func TestProcessFileSortsTradesForReplay(t *testing.T) {
	ctx := context.Background()
	p, _, sink := newTestProcessor(t)

	path := writeFile(t, "trades_20240312.csv", _tradeCSV)
	require.NoError(t, p.ProcessFile(ctx, path))

	require.Len(t, sink.trades, 2)
	assert.Equal(t, "t1", sink.trades[0].ID)
	assert.Equal(t, "t2", sink.trades[1].ID)
}

func TestProcessFileSchemaErrorMarksError(t *testing.T) {
	ctx := context.Background()
	p, store, sink := newTestProcessor(t)

	path := writeFile(t, "trades_20240312.csv",
		"tradeId,instrumentName,buySell,quantity,price\nt1,ZBH4,B,10,118.5\n")

	err := p.ProcessFile(ctx, path)
	require.Error(t, err)
	assert.Empty(t, sink.trades)
	assert.Equal(t, model.FileError, store.records[path].Status)

	// an errored file is retried on the next pass, not skipped
	var schemaErr *model.SchemaError
	assert.ErrorAs(t, p.ProcessFile(ctx, path), &schemaErr)
}

func TestProcessPriceFile(t *testing.T) {
	ctx := context.Background()
	p, store, _ := newTestProcessor(t)

	var gotDay time.Time
	var gotBucket int
	p.OnPricesIngested = func(day time.Time, bucket int) {
		gotDay, gotBucket = day, bucket
	}

	path := writeFile(t, "market_prices_20240312_1500.csv",
		"symbol,settlePrice,lastPrice\nZBH4,118.25,118.3\n")

	require.NoError(t, p.ProcessFile(ctx, path))
	require.Len(t, store.prices, 1)
	assert.Equal(t, 15, store.prices[0].HourBucket)
	assert.Equal(t, 15, gotBucket)
	assert.True(t, gotDay.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))

	// replay of the unchanged file doesn't duplicate records
	require.NoError(t, p.ProcessFile(ctx, path))
	assert.Len(t, store.prices, 1)
}

func TestProcessFileIgnoresUnknownNames(t *testing.T) {
	ctx := context.Background()
	p, store, sink := newTestProcessor(t)

	path := writeFile(t, "notes.txt", "hello")
	require.NoError(t, p.ProcessFile(ctx, path))
	assert.Empty(t, sink.trades)
	assert.Empty(t, store.records)
}
