package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadLedgerConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"trades_dir: /data/trades\nprices_dir: /data/prices\n"), 0o644))

	cfg, err := LoadLedgerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "America/Chicago", cfg.Timezone)
	assert.Equal(t, 15, cfg.AfternoonCutoffHour)
	assert.Equal(t, 17, cfg.CloseCutoffHour)
	assert.Equal(t, 16, cfg.FileCutoverHour)
	assert.Equal(t, time.Second, cfg.Debounce)
	assert.Equal(t, "8080", cfg.HTTPPort)
	assert.False(t, cfg.Feed.Enabled())
}

func TestLoadLedgerConfigRequiresDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte("trades_dir: /data/trades\n"), 0o644))

	_, err := LoadLedgerConfig(path)
	assert.Error(t, err)
}

func TestCutoffOrderValidated(t *testing.T) {
	cfg := LedgerConfig{
		TradesDir:           "/t",
		PricesDir:           "/p",
		AfternoonCutoffHour: 17,
		CloseCutoffHour:     15,
	}
	assert.Error(t, cfg.ValidateAndSetup())
}
