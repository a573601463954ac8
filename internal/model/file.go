package model

import "time"

type FileStatus string

const (
	FilePending    FileStatus = "pending"
	FileProcessing FileStatus = "processing"
	FileCompleted  FileStatus = "completed"
	FileError      FileStatus = "error"
)

type FileKind string

const (
	TradeFile FileKind = "trades"
	PriceFile FileKind = "prices"
)

// FileRecord makes reprocessing idempotent: a file whose (name, size, mtime)
// fingerprint matches a completed record is skipped. Anything not completed
// at restart is reprocessed from scratch.
type FileRecord struct {
	Path        string     `db:"path"`
	Kind        FileKind   `db:"kind"`
	Size        int64      `db:"size"`
	ModTime     time.Time  `db:"mod_time"`
	Status      FileStatus `db:"status"`
	RowsTotal   int        `db:"rows_total"`
	RowsInvalid int        `db:"rows_invalid"`
	LastError   string     `db:"last_error"`
	ProcessedAt time.Time  `db:"processed_at"`
}

// SameFingerprint reports whether the observed size and mtime match the
// recorded ones.
func (f FileRecord) SameFingerprint(size int64, modTime time.Time) bool {
	return f.Size == size && f.ModTime.Equal(modTime)
}
