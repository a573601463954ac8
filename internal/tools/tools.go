package tools

import (
	"github.com/shopspring/decimal"
)

// Round quantizes v to the given number of decimal places. P&L arithmetic
// goes through decimal after every step so weighted-average updates can't
// accumulate float drift.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// MulRound multiplies a and b exactly and rounds the product.
func MulRound(a, b float64, places int32) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(places).InexactFloat64()
}

// WeightedAvg returns sum(w_i*v_i)/sum(w_i) computed in decimal,
// rounded to places. Zero total weight returns 0.
func WeightedAvg(weights, values []float64, places int32) float64 {
	var num, den decimal.Decimal
	for i := range weights {
		w := decimal.NewFromFloat(weights[i])
		num = num.Add(w.Mul(decimal.NewFromFloat(values[i])))
		den = den.Add(w)
	}
	if den.IsZero() {
		return 0
	}
	return num.Div(den).Round(places).InexactFloat64()
}
