package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPriceNotFound means no price record matched the lookup window. Callers
// decide the fallback; it is never escalated as a hard failure.
var ErrPriceNotFound = errors.New("no matching price record")

// ErrSymbolResolution means an instrument symbol couldn't be normalized.
// The trade is excluded from matching but retained for audit.
var ErrSymbolResolution = errors.New("can't resolve instrument symbol")

// SchemaError rejects a whole file: a required column is missing, so no row
// of it can be trusted.
type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("file %s misses required columns: %s", e.File, strings.Join(e.Missing, ", "))
}

// RowError marks one malformed row. It is collected into the batch outcome,
// the rest of the file keeps processing.
type RowError struct {
	Line   int
	Reason string
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Line, e.Reason)
}
