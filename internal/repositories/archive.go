package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

const archiveColumns = `id, sequence, external_id, display_name, size, local_staging_path, status, status_reason, created_at, updated_at, deleted_at`

// ClaimGuard caps how many archives may sit in States at once. A claim fails when the cap is reached.
type ClaimGuard struct {
	States []models.ArchiveState
	Max    int
}

// ArchiveRepository implements models.Repository[*models.Archive] for remote archives.
//
// Handles archive CRUD operations with soft delete support and atomic status claims.
type ArchiveRepository struct {
	db *sql.DB
}

// NewArchiveRepository creates a new ArchiveRepository with the given database connection
func NewArchiveRepository(db *sql.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Create inserts a new archive into the database with generated ID and sequence
func (r *ArchiveRepository) Create(archive *models.Archive) error {
	sequence, err := NextSequence(r.db, "archives")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	archive.SetID(id)
	archive.SetSequence(sequence)

	if err := archive.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO archives (id, sequence, external_id, display_name, size, local_staging_path, status, status_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		archive.ExternalID(),
		archive.DisplayName(),
		archive.Size(),
		archive.LocalStagingPath(),
		archive.Status().State.String(),
		archive.Status().Reason,
		archive.CreatedAt(),
		archive.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert archive: %w", err)
	}

	return nil
}

// CreateIfAbsent inserts archive unless one with the same external id exists.
//
// Returns the stored archive and whether it was created by this call. Remote listings are imported
// at least once, so repeated imports of the same item are no-ops.
func (r *ArchiveRepository) CreateIfAbsent(archive *models.Archive) (*models.Archive, bool, error) {
	existing, err := r.GetByExternalID(archive.ExternalID())
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	if err := r.Create(archive); err != nil {
		if existing, getErr := r.GetByExternalID(archive.ExternalID()); getErr == nil {
			return existing, false, nil
		}
		return nil, false, err
	}
	return archive, true, nil
}

// Get retrieves an archive by ID, excluding soft-deleted archives
func (r *ArchiveRepository) Get(id string) (*models.Archive, error) {
	query := `SELECT ` + archiveColumns + ` FROM archives WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByExternalID retrieves an archive by its remote identifier
func (r *ArchiveRepository) GetByExternalID(externalID string) (*models.Archive, error) {
	query := `SELECT ` + archiveColumns + ` FROM archives WHERE external_id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, externalID))
}

// Update writes the full record. Concurrent updates are last-writer-wins.
func (r *ArchiveRepository) Update(archive *models.Archive) error {
	if err := archive.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	archive.SetUpdatedAt(now)

	query := `
		UPDATE archives
		SET display_name = ?, size = ?, local_staging_path = ?, status = ?, status_reason = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		archive.DisplayName(),
		archive.Size(),
		archive.LocalStagingPath(),
		archive.Status().State.String(),
		archive.Status().Reason,
		now,
		archive.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update archive: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("archive not found or already deleted: %s", archive.ID())
	}

	return nil
}

// Delete soft-deletes an archive by ID
func (r *ArchiveRepository) Delete(id string) error {
	query := `UPDATE archives SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("archive not found or already deleted: %s", id)
	}

	return nil
}

// List retrieves all archives matching the given criteria, excluding soft-deleted archives.
//
// Supported criteria: "status" ([models.ArchiveState]), "external_id" (string).
func (r *ArchiveRepository) List(criteria map[string]any) ([]*models.Archive, error) {
	query := `SELECT ` + archiveColumns + ` FROM archives WHERE deleted_at IS NULL`
	args := []any{}

	if state, ok := criteria["status"].(models.ArchiveState); ok {
		query += " AND status = ?"
		args = append(args, state.String())
	}

	if externalID, ok := criteria["external_id"].(string); ok && externalID != "" {
		query += " AND external_id = ?"
		args = append(args, externalID)
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer rows.Close()

	var archives []*models.Archive
	for rows.Next() {
		archive, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		archives = append(archives, archive)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return archives, nil
}

// ClaimNext moves the oldest archive in from to to and returns it, or nil when none is eligible.
//
// Selection and transition happen in one UPDATE so concurrent callers never claim the same row.
// With a guard, the claim is a no-op while guard.Max archives already sit in guard.States.
func (r *ArchiveRepository) ClaimNext(from, to models.ArchiveState, guard *ClaimGuard) (*models.Archive, error) {
	query := `
		UPDATE archives
		SET status = ?, status_reason = '', updated_at = ?
		WHERE id = (
			SELECT id FROM archives
			WHERE status = ? AND deleted_at IS NULL
			ORDER BY sequence ASC
			LIMIT 1
		)
		AND status = ?
	`
	args := []any{to.String(), time.Now(), from.String(), from.String()}

	if guard != nil && guard.Max > 0 && len(guard.States) > 0 {
		query += ` AND (SELECT COUNT(*) FROM archives WHERE deleted_at IS NULL AND status IN (` + placeholders(len(guard.States)) + `)) < ?`
		for _, s := range guard.States {
			args = append(args, s.String())
		}
		args = append(args, guard.Max)
	}

	query += ` RETURNING id`

	var id string
	err := r.db.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim archive: %w", err)
	}

	return r.Get(id)
}

// CountByState returns the number of archives in each state. States without archives are omitted.
func (r *ArchiveRepository) CountByState() (map[models.ArchiveState]int, error) {
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM archives WHERE deleted_at IS NULL GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count archives: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ArchiveState]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan archive count: %w", err)
		}
		state, err := models.ParseArchiveState(status)
		if err != nil {
			return nil, err
		}
		counts[state] = n
	}

	return counts, rows.Err()
}

// ResetInFlight returns archives left in flight by an interrupted run to their claimable state:
// downloading goes back to new (dropping any partial file) and examining_zip back to downloaded.
func (r *ArchiveRepository) ResetInFlight() (int64, error) {
	now := time.Now()

	downloads, err := r.db.Exec(
		`UPDATE archives SET status = ?, local_staging_path = '', updated_at = ? WHERE status = ? AND deleted_at IS NULL`,
		models.ArchiveNew.String(), now, models.ArchiveDownloading.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset downloads: %w", err)
	}

	examines, err := r.db.Exec(
		`UPDATE archives SET status = ?, updated_at = ? WHERE status = ? AND deleted_at IS NULL`,
		models.ArchiveDownloaded.String(), now, models.ArchiveExaminingZip.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset extractions: %w", err)
	}

	a, _ := downloads.RowsAffected()
	b, _ := examines.RowsAffected()
	return a + b, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scan maps one archive row onto a [models.Archive]
func (r *ArchiveRepository) scan(row scanner) (*models.Archive, error) {
	var (
		id               string
		sequence         int
		externalID       string
		displayName      string
		size             int64
		localStagingPath string
		status           string
		statusReason     string
		createdAt        time.Time
		updatedAt        time.Time
		deletedAt        sql.NullTime
	)

	err := row.Scan(&id, &sequence, &externalID, &displayName, &size, &localStagingPath, &status, &statusReason, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	st, err := models.NewArchiveStatus(status, statusReason)
	if err != nil {
		return nil, fmt.Errorf("archive %s: %w", id, err)
	}

	archive := models.NewArchive(sequence, externalID, displayName, size)
	archive.SetID(id)
	archive.SetLocalStagingPath(localStagingPath)
	archive.SetStatus(st)
	archive.SetCreatedAt(createdAt)
	archive.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		archive.SetDeletedAt(&deletedAt.Time)
	}

	return archive, nil
}

// scanOne scans a single row into a [models.Archive]
func (r *ArchiveRepository) scanOne(row *sql.Row) (*models.Archive, error) {
	archive, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("archive %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}
	return archive, nil
}

// scanRow scans a row from [sql.Rows] into a [models.Archive]
func (r *ArchiveRepository) scanRow(rows *sql.Rows) (*models.Archive, error) {
	archive, err := r.scan(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan archive: %w", err)
	}
	return archive, nil
}
