package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTradeFilename(t *testing.T) {
	day, ok := ParseTradeFilename("trades_20240312.csv")
	require.True(t, ok)
	assert.True(t, day.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))

	for _, name := range []string{
		"trades_2024031.csv",
		"trades_20240312.txt",
		"positions_20240312.csv",
		"trades_20240312.csv.bak",
	} {
		_, ok := ParseTradeFilename(name)
		assert.False(t, ok, name)
	}
}

func TestParsePriceFilename(t *testing.T) {
	day, bucket, ok := ParsePriceFilename("market_prices_20240312_1500.csv")
	require.True(t, ok)
	assert.True(t, day.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 15, bucket)

	_, bucket, ok = ParsePriceFilename("market_prices_20240312_1700.csv")
	require.True(t, ok)
	assert.Equal(t, 17, bucket)

	_, _, ok = ParsePriceFilename("market_prices_20240312.csv")
	assert.False(t, ok)
}

func TestResolver(t *testing.T) {
	r := NewResolver()

	sym, class, err := r.Resolve("  zbh4 ")
	require.NoError(t, err)
	assert.Equal(t, "ZBH4", sym)
	assert.Equal(t, "future", string(class))

	sym, class, err = r.Resolve("XCBT:ZBH4 C120")
	require.NoError(t, err)
	assert.Equal(t, "ZBH4 C120", sym)
	assert.Equal(t, "option", string(class))

	sym, class, err = r.Resolve("zbh4 p117.5")
	require.NoError(t, err)
	assert.Equal(t, "ZBH4 P117.5", sym)
	assert.Equal(t, "option", string(class))

	for _, raw := range []string{"", "   ", "##bad##", ":"} {
		_, _, err := r.Resolve(raw)
		assert.Error(t, err, "%q", raw)
	}
}
