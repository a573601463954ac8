package calendar

import (
	"fmt"
	"time"
)

// Calendar implements the desk's trading-day clock: an accounting day that
// runs from the close cutoff of the previous evening to the file cutover the
// next afternoon, in a fixed reference timezone. Weekends are not trading
// days; price and trade files are bucketed by this boundary, not by
// wall-clock midnight.
type Calendar struct {
	loc *time.Location

	afternoonCutoffHour int // switch from prev-settle to today's last price
	closeCutoffHour     int // switch to today's settle, also the EOD boundary
	fileCutoverHour     int // active trade file flips to tomorrow's name
}

func New(timezone string, afternoonCutoff, closeCutoff, fileCutover int) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: can't load timezone %s", err, timezone)
	}
	return &Calendar{
		loc:                 loc,
		afternoonCutoffHour: afternoonCutoff,
		closeCutoffHour:     closeCutoff,
		fileCutoverHour:     fileCutover,
	}, nil
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

func (c *Calendar) AfternoonCutoffHour() int { return c.afternoonCutoffHour }
func (c *Calendar) CloseCutoffHour() int     { return c.closeCutoffHour }

// Date truncates t to its civil date in the reference timezone.
func (c *Calendar) Date(t time.Time) time.Time {
	y, m, d := t.In(c.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.loc)
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// PrevTradingDay steps back from day to the previous weekday.
func (c *Calendar) PrevTradingDay(day time.Time) time.Time {
	d := day.AddDate(0, 0, -1)
	for isWeekend(d) {
		d = d.AddDate(0, 0, -1)
	}
	return d
}

// NextTradingDay steps forward from day to the next weekday.
func (c *Calendar) NextTradingDay(day time.Time) time.Time {
	d := day.AddDate(0, 0, 1)
	for isWeekend(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// ActiveTradeDay returns the trading date whose trade file is "live" at now.
// Before the cutover hour events target today's file, after it tomorrow's.
// On a weekend everything targets the next trading day.
func (c *Calendar) ActiveTradeDay(now time.Time) time.Time {
	local := now.In(c.loc)
	day := c.Date(local)
	if isWeekend(day) {
		return c.NextTradingDay(day)
	}
	if local.Hour() >= c.fileCutoverHour {
		return c.NextTradingDay(day)
	}
	return day
}

// PastEOD reports whether now is past the close cutoff of its civil date.
func (c *Calendar) PastEOD(now time.Time) bool {
	return now.In(c.loc).Hour() >= c.closeCutoffHour
}

// TradingDayFilename formats a trading date the way file names encode it.
func TradingDayFilename(day time.Time) string {
	return day.Format("20060102")
}
