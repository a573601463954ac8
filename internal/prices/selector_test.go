package prices

import (
	"testing"
	"time"

	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chicago(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)
	return loc
}

func TestWindowRegimes(t *testing.T) {
	loc := chicago(t)
	cal, err := calendar.New("America/Chicago", 15, 17, 16)
	require.NoError(t, err)
	s := &Selector{cal: cal}

	// Tuesday 2024-03-12
	day := time.Date(2024, 3, 12, 0, 0, 0, 0, loc)
	prev := time.Date(2024, 3, 11, 0, 0, 0, 0, loc)

	w := s.WindowFor(time.Date(2024, 3, 12, 14, 0, 0, 0, loc))
	assert.True(t, w.Day.Equal(prev))
	assert.Equal(t, model.BucketClose, w.Bucket)
	assert.Equal(t, model.SourcePrevSettle, w.Kind)

	w = s.WindowFor(time.Date(2024, 3, 12, 16, 0, 0, 0, loc))
	assert.True(t, w.Day.Equal(day))
	assert.Equal(t, model.BucketAfternoon, w.Bucket)
	assert.Equal(t, model.SourceLast, w.Kind)

	w = s.WindowFor(time.Date(2024, 3, 12, 18, 0, 0, 0, loc))
	assert.True(t, w.Day.Equal(day))
	assert.Equal(t, model.BucketClose, w.Bucket)
	assert.Equal(t, model.SourceSettle, w.Kind)
}

func TestWindowMondayLooksBackToFriday(t *testing.T) {
	loc := chicago(t)
	cal, err := calendar.New("America/Chicago", 15, 17, 16)
	require.NoError(t, err)
	s := &Selector{cal: cal}

	w := s.WindowFor(time.Date(2024, 3, 11, 9, 0, 0, 0, loc))
	assert.True(t, w.Day.Equal(time.Date(2024, 3, 8, 0, 0, 0, 0, loc)))
	assert.Equal(t, model.SourcePrevSettle, w.Kind)
}

func TestWindowCutoffBoundaries(t *testing.T) {
	loc := chicago(t)
	cal, err := calendar.New("America/Chicago", 15, 17, 16)
	require.NoError(t, err)
	s := &Selector{cal: cal}

	// 14:59 still previous settle, 15:00 flips to today's last
	w := s.WindowFor(time.Date(2024, 3, 12, 14, 59, 0, 0, loc))
	assert.Equal(t, model.SourcePrevSettle, w.Kind)
	w = s.WindowFor(time.Date(2024, 3, 12, 15, 0, 0, 0, loc))
	assert.Equal(t, model.SourceLast, w.Kind)

	// 17:00 flips to today's settle
	w = s.WindowFor(time.Date(2024, 3, 12, 17, 0, 0, 0, loc))
	assert.Equal(t, model.SourceSettle, w.Kind)
}
