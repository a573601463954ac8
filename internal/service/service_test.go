package service

import (
	"context"
	"testing"
	"time"

	"github.com/bondesk/pnl-ledger/internal/calendar"
	"github.com/bondesk/pnl-ledger/internal/config"
	"github.com/bondesk/pnl-ledger/internal/ingest"
	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTickTracksFileCutover(t *testing.T) {
	log, _, err := logger.NewZapLogger(logger.Error)
	require.NoError(t, err)

	cal, err := calendar.New("America/Chicago", 15, 17, 16)
	require.NoError(t, err)

	cfg := config.LedgerConfig{SODHour: 7, RecalcQueueSize: 1}
	processor := ingest.NewProcessor(nil, nil, nil, 1, log)
	s := NewService(cfg, cal, processor, nil, log)

	loc := cal.Location()
	tue := time.Date(2024, 3, 12, 0, 0, 0, 0, loc) // Tuesday
	// keep the snapshot branches quiet, this test is about the cutover
	s.lastSOD = tue
	s.lastEOD = tue
	s.activeDay = tue

	s.tick(context.Background(), time.Date(2024, 3, 12, 15, 59, 0, 0, loc))
	assert.True(t, s.activeDay.Equal(tue), "no cutover before the hour")

	s.tick(context.Background(), time.Date(2024, 3, 12, 16, 1, 0, 0, loc))
	wed := time.Date(2024, 3, 13, 0, 0, 0, 0, loc)
	assert.True(t, s.activeDay.Equal(wed), "cutover flips to the next trading day")
}

func TestTickCutoverSkipsWeekend(t *testing.T) {
	log, _, err := logger.NewZapLogger(logger.Error)
	require.NoError(t, err)

	cal, err := calendar.New("America/Chicago", 15, 17, 16)
	require.NoError(t, err)

	processor := ingest.NewProcessor(nil, nil, nil, 1, log)
	s := NewService(config.LedgerConfig{SODHour: 7, RecalcQueueSize: 1}, cal, processor, nil, log)

	loc := cal.Location()
	fri := time.Date(2024, 3, 15, 0, 0, 0, 0, loc)
	s.lastSOD = fri
	s.lastEOD = fri
	s.activeDay = fri

	s.tick(context.Background(), time.Date(2024, 3, 15, 16, 30, 0, 0, loc))
	mon := time.Date(2024, 3, 18, 0, 0, 0, 0, loc)
	assert.True(t, s.activeDay.Equal(mon), "friday cutover targets monday")
}
