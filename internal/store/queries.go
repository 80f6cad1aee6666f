package store

import (
	"database/sql"
	"fmt"
	"time"
)

// Batch operations

// InsertBatch records a batch as running and sets b.ID.
func (s *Store) InsertBatch(b *Batch) error {
	if b.Status == "" {
		b.Status = StatusRunning
	}

	query := `
		INSERT INTO batches (batch_id, archive, stamp, started_at, status, applied, total, backup_dir)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := s.db.Exec(query,
		b.BatchID,
		b.Archive,
		b.Stamp,
		b.StartedAt.Format(time.RFC3339),
		string(b.Status),
		b.Applied,
		b.Total,
		b.BackupDir,
	)
	if err != nil {
		return wrapErr(err, "failed to insert batch %s", b.BatchID)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get batch ID: %w", err)
	}
	b.ID = id
	return nil
}

// FinishBatch stores the outcome fields of b and stamps finished_at.
func (s *Store) FinishBatch(b *Batch) error {
	finished := time.Now()
	if b.FinishedAt != nil {
		finished = *b.FinishedAt
	}

	query := `
		UPDATE batches
		SET status = ?, applied = ?, total = ?, destination = ?, error = ?, finished_at = ?
		WHERE batch_id = ?
	`

	result, err := s.db.Exec(query,
		string(b.Status),
		b.Applied,
		b.Total,
		b.Destination,
		b.Error,
		finished.Format(time.RFC3339),
		b.BatchID,
	)
	if err != nil {
		return wrapErr(err, "failed to finish batch %s", b.BatchID)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to finish batch %s: %w", b.BatchID, err)
	}
	if rows == 0 {
		return fmt.Errorf("batch %s not found", b.BatchID)
	}

	b.FinishedAt = &finished
	return nil
}

const batchColumns = `id, batch_id, archive, stamp, started_at, finished_at, status, applied, total,
	COALESCE(backup_dir, ''), COALESCE(destination, ''), COALESCE(error, '')`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBatch(row rowScanner) (*Batch, error) {
	var b Batch
	var startedAt string
	var finishedAt sql.NullString
	var status string

	if err := row.Scan(
		&b.ID,
		&b.BatchID,
		&b.Archive,
		&b.Stamp,
		&startedAt,
		&finishedAt,
		&status,
		&b.Applied,
		&b.Total,
		&b.BackupDir,
		&b.Destination,
		&b.Error,
	); err != nil {
		return nil, err
	}
	b.Status = BatchStatus(status)

	var err error
	b.StartedAt, err = time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse started_at for %s: %w", b.BatchID, err)
	}
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := time.Parse(time.RFC3339, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse finished_at for %s: %w", b.BatchID, err)
		}
		b.FinishedAt = &t
	}
	return &b, nil
}

// GetBatch retrieves a batch by its ID or a unique prefix of it.
func (s *Store) GetBatch(batchID string) (*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE batch_id LIKE ? || '%' ORDER BY id LIMIT 2`

	rows, err := s.db.Query(query, batchID)
	if err != nil {
		return nil, wrapErr(err, "failed to get batch %s", batchID)
	}
	defer rows.Close()

	var found []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		found = append(found, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	switch len(found) {
	case 0:
		return nil, fmt.Errorf("batch %s not found", batchID)
	case 1:
		return found[0], nil
	default:
		for _, b := range found {
			if b.BatchID == batchID {
				return b, nil
			}
		}
		return nil, fmt.Errorf("batch prefix %s is ambiguous", batchID)
	}
}

// ListBatches returns up to limit batches, newest first. A limit of 0 returns all.
func (s *Store) ListBatches(limit int) ([]*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC, id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, wrapErr(err, "failed to list batches")
	}
	defer rows.Close()

	var batches []*Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}
	return batches, nil
}

// LastBatch returns the most recent batch, or nil if none were recorded.
func (s *Store) LastBatch() (*Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches ORDER BY started_at DESC, id DESC LIMIT 1`

	b, err := scanBatch(s.db.QueryRow(query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr(err, "failed to get last batch")
	}
	return b, nil
}

// CountByStatus returns how many batches ended in each status.
func (s *Store) CountByStatus() (map[BatchStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM batches GROUP BY status`)
	if err != nil {
		return nil, wrapErr(err, "failed to count batches")
	}
	defer rows.Close()

	counts := make(map[BatchStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan batch count: %w", err)
		}
		counts[BatchStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batch counts: %w", err)
	}
	return counts, nil
}

// Backed-up file operations

// InsertBackedUpFile records one file moved into a batch's backup folder.
func (s *Store) InsertBackedUpFile(f *BackedUpFile) error {
	query := `INSERT INTO backed_up_files (batch_id, relative_path, backup_path) VALUES (?, ?, ?)`

	if _, err := s.db.Exec(query, f.BatchID, f.RelativePath, f.BackupPath); err != nil {
		return wrapErr(err, "failed to insert backed up file %s", f.RelativePath)
	}
	return nil
}

// ListBackedUpFiles returns the files a batch moved out of the target, in the
// order they were moved.
func (s *Store) ListBackedUpFiles(batchID string) ([]*BackedUpFile, error) {
	query := `
		SELECT batch_id, relative_path, backup_path
		FROM backed_up_files
		WHERE batch_id = ?
		ORDER BY id
	`

	rows, err := s.db.Query(query, batchID)
	if err != nil {
		return nil, wrapErr(err, "failed to list backed up files for %s", batchID)
	}
	defer rows.Close()

	var files []*BackedUpFile
	for rows.Next() {
		var f BackedUpFile
		if err := rows.Scan(&f.BatchID, &f.RelativePath, &f.BackupPath); err != nil {
			return nil, fmt.Errorf("failed to scan backed up file: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backed up files: %w", err)
	}
	return files, nil
}
