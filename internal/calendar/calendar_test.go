package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCal(t *testing.T) *Calendar {
	t.Helper()
	c, err := New("America/Chicago", 15, 17, 16)
	require.NoError(t, err)
	return c
}

func TestDateTruncatesToLocalDay(t *testing.T) {
	c := newCal(t)
	// 01:30 UTC on the 13th is still the evening of the 12th in Chicago
	got := c.Date(time.Date(2024, 3, 13, 1, 30, 0, 0, time.UTC))
	assert.True(t, got.Equal(time.Date(2024, 3, 12, 0, 0, 0, 0, c.Location())))
}

func TestPrevNextTradingDaySkipWeekend(t *testing.T) {
	c := newCal(t)
	mon := time.Date(2024, 3, 11, 0, 0, 0, 0, c.Location())
	fri := time.Date(2024, 3, 8, 0, 0, 0, 0, c.Location())

	assert.True(t, c.PrevTradingDay(mon).Equal(fri))
	assert.True(t, c.NextTradingDay(fri).Equal(mon))
}

func TestActiveTradeDayCutover(t *testing.T) {
	c := newCal(t)
	loc := c.Location()
	tue := time.Date(2024, 3, 12, 0, 0, 0, 0, loc)
	wed := time.Date(2024, 3, 13, 0, 0, 0, 0, loc)

	// before the 16:00 cutover events target today's file
	assert.True(t, c.ActiveTradeDay(time.Date(2024, 3, 12, 15, 59, 0, 0, loc)).Equal(tue))
	// at and after the cutover they target tomorrow's
	assert.True(t, c.ActiveTradeDay(time.Date(2024, 3, 12, 16, 0, 0, 0, loc)).Equal(wed))

	// Friday evening rolls to Monday
	mon := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)
	assert.True(t, c.ActiveTradeDay(time.Date(2024, 3, 8, 18, 0, 0, 0, loc)).Equal(mon))
	// Saturday targets Monday too
	assert.True(t, c.ActiveTradeDay(time.Date(2024, 3, 9, 12, 0, 0, 0, loc)).Equal(mon))
}

func TestPastEOD(t *testing.T) {
	c := newCal(t)
	loc := c.Location()
	assert.False(t, c.PastEOD(time.Date(2024, 3, 12, 16, 59, 0, 0, loc)))
	assert.True(t, c.PastEOD(time.Date(2024, 3, 12, 17, 0, 0, 0, loc)))
}

func TestTradingDayFilename(t *testing.T) {
	d := time.Date(2024, 3, 12, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "20240312", TradingDayFilename(d))
}
