package updater

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/blackwell-systems/autoupdater/internal/layout"
)

// Batch is one discovered archive. Stamp is captured once at discovery and
// names the batch's backup, history and quarantine folders.
type Batch struct {
	ID           uuid.UUID
	ArchivePath  string
	DiscoveredAt time.Time
	Stamp        string
}

// NewBatch creates a batch for archivePath discovered at now.
func NewBatch(archivePath string, now time.Time) Batch {
	return Batch{
		ID:           uuid.New(),
		ArchivePath:  archivePath,
		DiscoveredAt: now,
		Stamp:        layout.BatchStamp(now),
	}
}

// ArchiveName returns the archive's file name.
func (b Batch) ArchiveName() string {
	return filepath.Base(b.ArchivePath)
}
