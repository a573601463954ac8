package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/google/uuid"
)

var _tradeTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// TradeBatch is the outcome of preprocessing one trade file: validated
// trades ready for matching, audit-only rows, and per-row errors for the
// rows that were skipped. Row failures never abort the file; only a missing
// required column does.
type TradeBatch struct {
	TradingDay time.Time
	Trades     []model.Trade
	RowErrors  []model.RowError
	RowsTotal  int
}

// PriceBatch mirrors TradeBatch for a price file.
type PriceBatch struct {
	Records   []model.PriceRecord
	RowErrors []model.RowError
	RowsTotal int
}

// Preprocessor validates, classifies and normalizes raw CSV rows before
// they reach the matching engine. Rows with a midnight market time are SOD
// carry-over rows; zero-price rows are option exercise/assignment. Both are
// recorded for audit but bypass FIFO matching downstream.
type Preprocessor struct {
	resolver *Resolver
	loc      *time.Location
	logger   logger.Logger
}

func NewPreprocessor(resolver *Resolver, loc *time.Location, logger logger.Logger) *Preprocessor {
	return &Preprocessor{
		resolver: resolver,
		loc:      loc,
		logger:   logger,
	}
}

// header maps lower-cased column names to their index, checking the
// required set. A missing required column rejects the whole file.
func header(record []string, required []string, file string) (map[string]int, error) {
	cols := make(map[string]int, len(record))
	for i, name := range record {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	var missing []string
	for _, name := range required {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &model.SchemaError{File: file, Missing: missing}
	}
	return cols, nil
}

var _tradeColumns = []string{"tradeid", "instrumentname", "markettradetime", "buysell", "quantity", "price"}

// ParseTradeFile reads one trade file. The trading day of every row is the
// one encoded in the filename.
func (p *Preprocessor) ParseTradeFile(path string, tradingDay time.Time) (*TradeBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open trade file %s", err, path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	head, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: can't read header of %s", err, path)
	}
	cols, err := header(head, _tradeColumns, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	batch := &TradeBatch{TradingDay: tradingDay}
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		batch.RowsTotal++
		if err != nil {
			batch.RowErrors = append(batch.RowErrors, model.RowError{Line: line, Reason: err.Error()})
			continue
		}

		t, rowErr := p.tradeFromRow(record, cols, tradingDay, filepath.Base(path), line)
		if rowErr != nil {
			batch.RowErrors = append(batch.RowErrors, *rowErr)
			continue
		}
		batch.Trades = append(batch.Trades, t)
	}
	return batch, nil
}

func (p *Preprocessor) tradeFromRow(record []string, cols map[string]int, tradingDay time.Time, source string, line int) (model.Trade, *model.RowError) {
	fail := func(reason string) (model.Trade, *model.RowError) {
		return model.Trade{}, &model.RowError{Line: line, Reason: reason}
	}
	field := func(name string) string {
		i := cols[name]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	id := field("tradeid")
	if id == "" {
		// SOD carry-over exports arrive without trade ids; derive a stable
		// one from the row itself so reprocessing stays idempotent
		seed := source + "|" + field("instrumentname") + "|" + field("markettradetime") + "|" + field("buysell") + "|" + field("quantity")
		id = uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
	}

	marketTime, err := p.parseTradeTime(field("markettradetime"))
	if err != nil {
		return fail(fmt.Sprintf("bad marketTradeTime %q", field("markettradetime")))
	}

	side := strings.ToUpper(field("buysell"))
	if side != "B" && side != "S" {
		return fail(fmt.Sprintf("bad buySell %q", field("buysell")))
	}

	qty, err := strconv.ParseFloat(field("quantity"), 64)
	if err != nil || qty <= 0 {
		return fail(fmt.Sprintf("bad quantity %q", field("quantity")))
	}
	if side == "S" {
		qty = -qty
	}

	price, err := strconv.ParseFloat(field("price"), 64)
	if err != nil || price < 0 {
		return fail(fmt.Sprintf("bad price %q", field("price")))
	}

	t := model.Trade{
		ID:         id,
		Quantity:   qty,
		Price:      price,
		MarketTime: marketTime,
		TradingDay: tradingDay,
		Kind:       model.Regular,
		SourceFile: source,
	}

	sym, class, err := p.resolver.Resolve(field("instrumentname"))
	if err != nil {
		// unresolvable symbols stay out of matching but are kept for audit
		t.Instrument = strings.TrimSpace(field("instrumentname"))
		t.AssetClass = model.Future
		t.Kind = model.Unresolved
		if t.Instrument == "" {
			return fail("empty instrumentName")
		}
		p.logger.Warnf("row %d: can't resolve symbol %q, audit only", line, t.Instrument)
		return t, nil
	}
	t.Instrument = sym
	t.AssetClass = class

	h, m, s := marketTime.In(p.loc).Clock()
	switch {
	case h == 0 && m == 0 && s == 0:
		t.Kind = model.StartOfDay
	case price == 0 && class == model.Option:
		t.Kind = model.Exercise
	}
	return t, nil
}

func (p *Preprocessor) parseTradeTime(raw string) (time.Time, error) {
	for _, layout := range _tradeTimeLayouts {
		if ts, err := time.ParseInLocation(layout, raw, p.loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time %q", raw)
}

var _priceColumns = []string{"symbol", "settleprice", "lastprice"}

// ParsePriceFile reads one price file; day and bucket come from the
// filename, uploadedAt is the observed file mtime.
func (p *Preprocessor) ParsePriceFile(path string, day time.Time, bucket int, uploadedAt time.Time) (*PriceBatch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: can't open price file %s", err, path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	head, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: can't read header of %s", err, path)
	}
	cols, err := header(head, _priceColumns, filepath.Base(path))
	if err != nil {
		return nil, err
	}

	batch := &PriceBatch{}
	line := 1
	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		batch.RowsTotal++
		if err != nil {
			batch.RowErrors = append(batch.RowErrors, model.RowError{Line: line, Reason: err.Error()})
			continue
		}

		rec, rowErr := p.priceFromRow(record, cols, day, bucket, uploadedAt, filepath.Base(path), line)
		if rowErr != nil {
			batch.RowErrors = append(batch.RowErrors, *rowErr)
			continue
		}
		batch.Records = append(batch.Records, rec)
	}
	return batch, nil
}

func (p *Preprocessor) priceFromRow(record []string, cols map[string]int, day time.Time, bucket int, uploadedAt time.Time, source string, line int) (model.PriceRecord, *model.RowError) {
	fail := func(reason string) (model.PriceRecord, *model.RowError) {
		return model.PriceRecord{}, &model.RowError{Line: line, Reason: reason}
	}
	field := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	optFloat := func(name string) float64 {
		v, err := strconv.ParseFloat(field(name), 64)
		if err != nil {
			return 0
		}
		return v
	}

	sym, class, err := p.resolver.Resolve(field("symbol"))
	if err != nil {
		return fail(fmt.Sprintf("can't resolve symbol %q", field("symbol")))
	}
	// option metadata columns are authoritative for the class when present
	if field("strike") != "" {
		class = model.Option
	}

	settle, err := strconv.ParseFloat(field("settleprice"), 64)
	if err != nil || settle < 0 {
		return fail(fmt.Sprintf("bad settlePrice %q", field("settleprice")))
	}
	last, err := strconv.ParseFloat(field("lastprice"), 64)
	if err != nil || last < 0 {
		return fail(fmt.Sprintf("bad lastPrice %q", field("lastprice")))
	}

	return model.PriceRecord{
		Instrument: sym,
		AssetClass: class,
		Settle:     settle,
		Last:       last,
		Bid:        optFloat("bid"),
		Ask:        optFloat("ask"),
		TradingDay: day,
		HourBucket: bucket,
		UploadedAt: uploadedAt,
		SourceFile: source,
	}, nil
}
