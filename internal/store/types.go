package store

import "time"

// BatchStatus is the outcome of one archive.
type BatchStatus string

const (
	StatusRunning     BatchStatus = "running"
	StatusApplied     BatchStatus = "applied"
	StatusPartial     BatchStatus = "partial"
	StatusQuarantined BatchStatus = "quarantined"
	StatusDeferred    BatchStatus = "deferred"
)

// Batch is the ledger row for one processed archive.
type Batch struct {
	ID          int64
	BatchID     string
	Archive     string
	Stamp       string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      BatchStatus
	Applied     int
	Total       int
	BackupDir   string
	Destination string // history or quarantine path, empty if the archive stayed in staging
	Error       string
}

// BackedUpFile is a file moved out of the target by a batch.
type BackedUpFile struct {
	BatchID      string
	RelativePath string
	BackupPath   string
}
