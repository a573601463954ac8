package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bondesk/pnl-ledger/internal/model"
)

const (
	_queryFileRecord = `SELECT path, kind, size, mod_time, status, rows_total, rows_invalid, last_error, processed_at
		FROM file_records WHERE path = $1`

	_upsertFileRecord = `INSERT INTO file_records (
			path, kind, size, mod_time, status, rows_total, rows_invalid, last_error, processed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (path)
		DO UPDATE SET
			kind = EXCLUDED.kind,
			size = EXCLUDED.size,
			mod_time = EXCLUDED.mod_time,
			status = EXCLUDED.status,
			rows_total = EXCLUDED.rows_total,
			rows_invalid = EXCLUDED.rows_invalid,
			last_error = EXCLUDED.last_error,
			processed_at = EXCLUDED.processed_at`
)

// GetFileRecord returns nil when the path was never observed.
func (s *Store) GetFileRecord(ctx context.Context, path string) (*model.FileRecord, error) {
	var fr model.FileRecord
	if err := s.db.GetContext(ctx, &fr, _queryFileRecord, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: can't query file record %s", err, path)
	}
	return &fr, nil
}

func (s *Store) UpsertFileRecord(ctx context.Context, fr model.FileRecord) error {
	if _, err := s.db.ExecContext(ctx, _upsertFileRecord,
		fr.Path, fr.Kind, fr.Size, fr.ModTime, fr.Status,
		fr.RowsTotal, fr.RowsInvalid, fr.LastError, fr.ProcessedAt,
	); err != nil {
		return fmt.Errorf("%w: can't upsert file record %s", err, fr.Path)
	}
	return nil
}
