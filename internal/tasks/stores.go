package tasks

import (
	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/repositories"
)

// ArchiveStore is the part of [repositories.ArchiveRepository] the pipeline consumes.
type ArchiveStore interface {
	Get(id string) (*models.Archive, error)
	Update(archive *models.Archive) error
	ClaimNext(from, to models.ArchiveState, guard *repositories.ClaimGuard) (*models.Archive, error)
	ResetInFlight() (int64, error)
}

// FileStore is the part of [repositories.FileEntryRepository] the pipeline consumes.
type FileStore interface {
	Create(entry *models.FileEntry) error
	Get(id string) (*models.FileEntry, error)
	GetByEntryPath(archiveID, entryPath string) (*models.FileEntry, error)
	Update(entry *models.FileEntry) error
	SetRelated(id, relatedID string) error
	ClaimNext(kind models.Kind, from []models.FileState, to models.FileState) (*models.FileEntry, error)
	ClaimByID(id string, from []models.FileState, to models.FileState) (*models.FileEntry, error)
	FindByPairingKey(archiveID, key string, kind models.Kind) (*models.FileEntry, error)
	ResetInFlight() (int64, error)
}

// RecordStore creates media records, at most once per media entry.
type RecordStore interface {
	Create(record *models.MediaRecord) (*models.MediaRecord, bool, error)
}

var (
	_ ArchiveStore = (*repositories.ArchiveRepository)(nil)
	_ FileStore    = (*repositories.FileEntryRepository)(nil)
	_ RecordStore  = (*repositories.MediaRecordRepository)(nil)
)
