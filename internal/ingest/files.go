package ingest

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"
)

// File naming conventions. The trading day of every row comes from these
// names, never from row timestamps: a whole file belongs to one trading day
// regardless of intra-file clock skew.
var (
	_tradeFileRe = regexp.MustCompile(`^trades_(\d{8})\.csv$`)
	_priceFileRe = regexp.MustCompile(`^market_prices_(\d{8})_(\d{2})(\d{2})\.csv$`)
)

// ParseTradeFilename extracts the trading date from trades_YYYYMMDD.csv.
func ParseTradeFilename(name string) (time.Time, bool) {
	m := _tradeFileRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	day, err := time.ParseInLocation("20060102", m[1], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return day, true
}

// ParsePriceFilename extracts the trading date and the upload-hour bucket
// from market_prices_YYYYMMDD_HHMM.csv.
func ParsePriceFilename(name string) (time.Time, int, bool) {
	m := _priceFileRe.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, 0, false
	}
	day, err := time.ParseInLocation("20060102", m[1], time.UTC)
	if err != nil {
		return time.Time{}, 0, false
	}
	bucket, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, 0, false
	}
	return day, bucket, true
}

// Stat returns the (size, mtime) fingerprint of a file.
func Stat(path string) (int64, time.Time, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("%w: can't stat %s", err, path)
	}
	return info.Size(), info.ModTime(), nil
}
