package ingest

import (
	"regexp"
	"strings"

	"github.com/bondesk/pnl-ledger/internal/model"
)

var _optionSuffixRe = regexp.MustCompile(`(^|[ ._-])[CP] ?\d+(\.\d+)?$`)

// Resolver normalizes raw vendor symbols into desk instrument names and
// infers the asset class. Option symbols carry a trailing call/put strike
// token ("ZBH4 C120"); everything else on this desk is a bond future.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the normalized symbol and asset class, or
// model.ErrSymbolResolution when the raw symbol can't be normalized. Such
// trades are excluded from matching but retained for audit.
func (r *Resolver) Resolve(raw string) (string, model.AssetClass, error) {
	sym := strings.ToUpper(strings.TrimSpace(raw))
	// vendor feeds may prefix the exchange ("XCBT:ZBH4")
	if i := strings.LastIndex(sym, ":"); i >= 0 {
		sym = sym[i+1:]
	}
	if sym == "" || !isSymbol(sym) {
		return "", "", model.ErrSymbolResolution
	}
	if _optionSuffixRe.MatchString(sym) {
		return sym, model.Option, nil
	}
	return sym, model.Future, nil
}

func isSymbol(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case i > 0 && (c == ' ' || c == '.' || c == '_' || c == '-'):
		default:
			return false
		}
	}
	return true
}
