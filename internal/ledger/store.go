package ledger

import (
	"context"
	"fmt"

	"github.com/bondesk/pnl-ledger/internal/logger"
	"github.com/jmoiron/sqlx"
)

// Store is the persistent ledger: append-only trade log, live positions,
// price time series, snapshots, file-processing state and daily summaries.
// Every mutation runs in a transaction; readers see the latest committed
// state through the database, not through locks of ours.
type Store struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewStore(db *sqlx.DB, logger logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

const _schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id    TEXT             NOT NULL,
	instrument  TEXT             NOT NULL,
	asset_class TEXT             NOT NULL,
	quantity    DOUBLE PRECISION NOT NULL,
	price       DOUBLE PRECISION NOT NULL,
	market_time TIMESTAMPTZ      NOT NULL,
	trading_day DATE             NOT NULL,
	kind        TEXT             NOT NULL,
	source_file TEXT             NOT NULL,
	PRIMARY KEY (trade_id, trading_day)
);

CREATE TABLE IF NOT EXISTS positions (
	instrument     TEXT PRIMARY KEY,
	asset_class    TEXT             NOT NULL,
	quantity       DOUBLE PRECISION NOT NULL,
	avg_cost       DOUBLE PRECISION NOT NULL,
	realized_pnl   DOUBLE PRECISION NOT NULL,
	unrealized_pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
	last_price     DOUBLE PRECISION NOT NULL DEFAULT 0,
	price_stale    BOOLEAN          NOT NULL DEFAULT FALSE,
	trading_day    DATE             NOT NULL,
	updated_at     TIMESTAMPTZ      NOT NULL
);

CREATE TABLE IF NOT EXISTS position_history (
	id             BIGSERIAL PRIMARY KEY,
	instrument     TEXT             NOT NULL,
	asset_class    TEXT             NOT NULL,
	quantity       DOUBLE PRECISION NOT NULL,
	avg_cost       DOUBLE PRECISION NOT NULL,
	realized_pnl   DOUBLE PRECISION NOT NULL,
	unrealized_pnl DOUBLE PRECISION NOT NULL,
	last_price     DOUBLE PRECISION NOT NULL,
	price_stale    BOOLEAN          NOT NULL,
	trading_day    DATE             NOT NULL,
	updated_at     TIMESTAMPTZ      NOT NULL
);

CREATE TABLE IF NOT EXISTS price_records (
	instrument   TEXT             NOT NULL,
	asset_class  TEXT             NOT NULL,
	settle_price DOUBLE PRECISION NOT NULL,
	last_price   DOUBLE PRECISION NOT NULL,
	bid          DOUBLE PRECISION NOT NULL DEFAULT 0,
	ask          DOUBLE PRECISION NOT NULL DEFAULT 0,
	trading_day  DATE             NOT NULL,
	hour_bucket  INT              NOT NULL,
	uploaded_at  TIMESTAMPTZ      NOT NULL,
	source_file  TEXT             NOT NULL,
	PRIMARY KEY (instrument, uploaded_at)
);
CREATE INDEX IF NOT EXISTS price_records_window_idx
	ON price_records (instrument, trading_day, hour_bucket, uploaded_at DESC);

CREATE TABLE IF NOT EXISTS position_snapshots (
	id             BIGSERIAL PRIMARY KEY,
	kind           TEXT             NOT NULL,
	taken_at       TIMESTAMPTZ      NOT NULL,
	instrument     TEXT             NOT NULL,
	asset_class    TEXT             NOT NULL,
	quantity       DOUBLE PRECISION NOT NULL,
	avg_cost       DOUBLE PRECISION NOT NULL,
	realized_pnl   DOUBLE PRECISION NOT NULL,
	unrealized_pnl DOUBLE PRECISION NOT NULL,
	last_price     DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS position_snapshots_day_idx
	ON position_snapshots (instrument, kind, taken_at DESC);

CREATE TABLE IF NOT EXISTS file_records (
	path         TEXT PRIMARY KEY,
	kind         TEXT        NOT NULL,
	size         BIGINT      NOT NULL,
	mod_time     TIMESTAMPTZ NOT NULL,
	status       TEXT        NOT NULL,
	rows_total   INT         NOT NULL DEFAULT 0,
	rows_invalid INT         NOT NULL DEFAULT 0,
	last_error   TEXT        NOT NULL DEFAULT '',
	processed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS daily_summaries (
	instrument     TEXT             NOT NULL,
	trading_day    DATE             NOT NULL,
	realized_pnl   DOUBLE PRECISION NOT NULL,
	unrealized_pnl DOUBLE PRECISION NOT NULL,
	quantity       DOUBLE PRECISION NOT NULL,
	updated_at     TIMESTAMPTZ      NOT NULL,
	PRIMARY KEY (instrument, trading_day)
);`

// InitSchema bootstraps all ledger tables. Safe to run on every start.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, _schema); err != nil {
		return fmt.Errorf("%w: can't init ledger schema", err)
	}
	return nil
}

// withTx runs fn inside a transaction, rolling back on any error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: can't begin tx", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Errorf("%s: rollback failed", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: can't commit tx", err)
	}
	return nil
}
