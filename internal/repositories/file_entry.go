package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

const fileEntryColumns = `id, sequence, archive_id, name, entry_path, path, kind, pairing_key, status, status_reason, related_entry_id, created_at, updated_at, deleted_at`

// FileEntryRepository implements models.Repository[*models.FileEntry] for extracted files.
//
// Handles file entry CRUD operations, per-kind claims gated on the owning archive, and pairing-key lookups.
type FileEntryRepository struct {
	db *sql.DB
}

// NewFileEntryRepository creates a new FileEntryRepository with the given database connection
func NewFileEntryRepository(db *sql.DB) *FileEntryRepository {
	return &FileEntryRepository{db: db}
}

// Create inserts a new file entry into the database with generated ID and sequence
func (r *FileEntryRepository) Create(entry *models.FileEntry) error {
	sequence, err := NextSequence(r.db, "file_entries")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	entry.SetID(id)
	entry.SetSequence(sequence)

	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO file_entries (
			id, sequence, archive_id, name, entry_path, path, kind, pairing_key,
			status, status_reason, related_entry_id, created_at, updated_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query,
		id,
		sequence,
		entry.ArchiveID(),
		entry.Name(),
		entry.EntryPath(),
		entry.Path(),
		string(entry.Kind()),
		entry.PairingKey(),
		entry.Status().State.String(),
		entry.Status().Reason,
		nullString(entry.RelatedEntryID()),
		entry.CreatedAt(),
		entry.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert file entry: %w", err)
	}

	return nil
}

// Get retrieves a file entry by ID, excluding soft-deleted entries
func (r *FileEntryRepository) Get(id string) (*models.FileEntry, error) {
	query := `SELECT ` + fileEntryColumns + ` FROM file_entries WHERE id = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByEntryPath retrieves the entry extracted from entryPath of an archive
func (r *FileEntryRepository) GetByEntryPath(archiveID, entryPath string) (*models.FileEntry, error) {
	query := `SELECT ` + fileEntryColumns + ` FROM file_entries WHERE archive_id = ? AND entry_path = ? AND deleted_at IS NULL`
	return r.scanOne(r.db.QueryRow(query, archiveID, entryPath))
}

// Update writes the full record. Concurrent updates are last-writer-wins.
func (r *FileEntryRepository) Update(entry *models.FileEntry) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now()
	entry.SetUpdatedAt(now)

	query := `
		UPDATE file_entries
		SET path = ?, status = ?, status_reason = ?, related_entry_id = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query,
		entry.Path(),
		entry.Status().State.String(),
		entry.Status().Reason,
		nullString(entry.RelatedEntryID()),
		now,
		entry.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update file entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file entry not found or already deleted: %s", entry.ID())
	}

	return nil
}

// SetRelated writes only the pairing pointer of an entry, leaving its status untouched.
func (r *FileEntryRepository) SetRelated(id, relatedID string) error {
	result, err := r.db.Exec(
		`UPDATE file_entries SET related_entry_id = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		nullString(relatedID), time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to link file entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file entry not found or already deleted: %s", id)
	}
	return nil
}

// Delete soft-deletes a file entry by ID.
//
// A counterpart pointing at the deleted entry loses its link and, unless already finished, parks as no_pair.
func (r *FileEntryRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	result, err := tx.Exec(`UPDATE file_entries SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, now, id)
	if err != nil {
		return fmt.Errorf("failed to delete file entry: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("file entry not found or already deleted: %s", id)
	}

	_, err = tx.Exec(`
		UPDATE file_entries
		SET related_entry_id = NULL,
			status = CASE WHEN status IN (?, ?) THEN status ELSE ? END,
			status_reason = CASE WHEN status = ? THEN status_reason ELSE '' END,
			updated_at = ?
		WHERE related_entry_id = ? AND deleted_at IS NULL
	`,
		models.FileProcessed.String(), models.FileFailed.String(), models.FileNoPair.String(),
		models.FileFailed.String(), now, id,
	)
	if err != nil {
		return fmt.Errorf("failed to unlink counterpart: %w", err)
	}

	return tx.Commit()
}

// List retrieves all file entries matching the given criteria, excluding soft-deleted entries.
//
// Supported criteria: "archive_id" (string), "kind" ([models.Kind]), "status" ([models.FileState]).
func (r *FileEntryRepository) List(criteria map[string]any) ([]*models.FileEntry, error) {
	query := `SELECT ` + fileEntryColumns + ` FROM file_entries WHERE deleted_at IS NULL`
	args := []any{}

	if archiveID, ok := criteria["archive_id"].(string); ok && archiveID != "" {
		query += " AND archive_id = ?"
		args = append(args, archiveID)
	}

	if kind, ok := criteria["kind"].(models.Kind); ok && kind != "" {
		query += " AND kind = ?"
		args = append(args, string(kind))
	}

	if state, ok := criteria["status"].(models.FileState); ok {
		query += " AND status = ?"
		args = append(args, state.String())
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query file entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.FileEntry
	for rows.Next() {
		entry, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// ClaimNext moves the oldest entry of kind whose status is in from to to, and returns it.
// Entries are only eligible once their archive reached processed_zip. Returns nil when none is eligible.
func (r *FileEntryRepository) ClaimNext(kind models.Kind, from []models.FileState, to models.FileState) (*models.FileEntry, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: claim needs at least one source state", shared.ErrInvalidArgument)
	}

	in := placeholders(len(from))
	query := `
		UPDATE file_entries
		SET status = ?, status_reason = '', updated_at = ?
		WHERE id = (
			SELECT f.id FROM file_entries f
			JOIN archives a ON a.id = f.archive_id
			WHERE f.kind = ? AND f.status IN (` + in + `) AND f.deleted_at IS NULL
				AND a.status = ? AND a.deleted_at IS NULL
			ORDER BY f.sequence ASC
			LIMIT 1
		)
		AND status IN (` + in + `)
		RETURNING id
	`

	args := []any{to.String(), time.Now(), string(kind)}
	args = appendStates(args, from)
	args = append(args, models.ArchiveProcessedZip.String())
	args = appendStates(args, from)

	var id string
	err := r.db.QueryRow(query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim file entry: %w", err)
	}

	return r.Get(id)
}

// ClaimByID moves entry id to to if its status is in from. Returns nil when the entry is not in a source state.
func (r *FileEntryRepository) ClaimByID(id string, from []models.FileState, to models.FileState) (*models.FileEntry, error) {
	if len(from) == 0 {
		return nil, fmt.Errorf("%w: claim needs at least one source state", shared.ErrInvalidArgument)
	}

	query := `
		UPDATE file_entries
		SET status = ?, status_reason = '', updated_at = ?
		WHERE id = ? AND deleted_at IS NULL AND status IN (` + placeholders(len(from)) + `)
		RETURNING id
	`

	args := []any{to.String(), time.Now(), id}
	args = appendStates(args, from)

	var claimed string
	err := r.db.QueryRow(query, args...).Scan(&claimed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim file entry: %w", err)
	}

	return r.Get(claimed)
}

// FindByPairingKey returns the oldest entry of kind with key inside an archive, or nil.
func (r *FileEntryRepository) FindByPairingKey(archiveID, key string, kind models.Kind) (*models.FileEntry, error) {
	query := `
		SELECT ` + fileEntryColumns + ` FROM file_entries
		WHERE archive_id = ? AND pairing_key = ? AND kind = ? AND deleted_at IS NULL
		ORDER BY sequence ASC
		LIMIT 1
	`

	entry, err := r.scanOne(r.db.QueryRow(query, archiveID, key, string(kind)))
	if errors.Is(err, shared.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// CountByState returns the number of entries of kind in each state. States without entries are omitted.
func (r *FileEntryRepository) CountByState(kind models.Kind) (map[models.FileState]int, error) {
	rows, err := r.db.Query(
		`SELECT status, COUNT(*) FROM file_entries WHERE kind = ? AND deleted_at IS NULL GROUP BY status`,
		string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count file entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.FileState]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan file entry count: %w", err)
		}
		state, err := models.ParseFileState(status)
		if err != nil {
			return nil, err
		}
		counts[state] = n
	}

	return counts, rows.Err()
}

// Problem is one row of the file_entry_problems view.
type Problem struct {
	EntryID     string
	ArchiveName string
	EntryPath   string
	Kind        models.Kind
	Status      models.FileStatus
}

// ListProblems returns failed and parked entries in extraction order.
func (r *FileEntryRepository) ListProblems() ([]Problem, error) {
	rows, err := r.db.Query(`
		SELECT p.id, p.archive_name, p.entry_path, p.kind, p.status, p.status_reason
		FROM file_entry_problems p
		JOIN file_entries f ON f.id = p.id
		ORDER BY f.sequence ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query problems: %w", err)
	}
	defer rows.Close()

	var problems []Problem
	for rows.Next() {
		var (
			p      Problem
			kind   string
			status string
			reason string
		)
		if err := rows.Scan(&p.EntryID, &p.ArchiveName, &p.EntryPath, &kind, &status, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan problem: %w", err)
		}
		p.Kind = models.Kind(kind)
		if p.Status, err = models.NewFileStatus(status, reason); err != nil {
			return nil, err
		}
		problems = append(problems, p)
	}

	return problems, rows.Err()
}

// ResetInFlight returns entries left in processing by an interrupted run to a claimable state:
// linked entries become associated, unlinked ones unassociated.
func (r *FileEntryRepository) ResetInFlight() (int64, error) {
	result, err := r.db.Exec(`
		UPDATE file_entries
		SET status = CASE WHEN related_entry_id IS NULL THEN ? ELSE ? END, updated_at = ?
		WHERE status = ? AND deleted_at IS NULL
	`,
		models.FileUnassociated.String(), models.FileAssociated.String(), time.Now(), models.FileProcessing.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset file entries: %w", err)
	}
	return result.RowsAffected()
}

func appendStates(args []any, states []models.FileState) []any {
	for _, s := range states {
		args = append(args, s.String())
	}
	return args
}

// scan maps one file entry row onto a [models.FileEntry]
func (r *FileEntryRepository) scan(row scanner) (*models.FileEntry, error) {
	var (
		id             string
		sequence       int
		archiveID      string
		name           string
		entryPath      string
		path           string
		kind           string
		pairingKey     string
		status         string
		statusReason   string
		relatedEntryID sql.NullString
		createdAt      time.Time
		updatedAt      time.Time
		deletedAt      sql.NullTime
	)

	err := row.Scan(&id, &sequence, &archiveID, &name, &entryPath, &path, &kind, &pairingKey,
		&status, &statusReason, &relatedEntryID, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	st, err := models.NewFileStatus(status, statusReason)
	if err != nil {
		return nil, fmt.Errorf("file entry %s: %w", id, err)
	}
	k, err := models.ParseKind(kind)
	if err != nil {
		return nil, fmt.Errorf("file entry %s: %w", id, err)
	}

	entry := models.NewFileEntry(sequence, archiveID, entryPath, path)
	entry.SetID(id)
	entry.SetName(name)
	entry.SetKind(k)
	entry.SetPairingKey(pairingKey)
	entry.SetStatus(st)
	entry.SetRelatedEntryID(relatedEntryID.String)
	entry.SetCreatedAt(createdAt)
	entry.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		entry.SetDeletedAt(&deletedAt.Time)
	}

	return entry, nil
}

// scanOne scans a single row into a [models.FileEntry]
func (r *FileEntryRepository) scanOne(row *sql.Row) (*models.FileEntry, error) {
	entry, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("file entry %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan file entry: %w", err)
	}
	return entry, nil
}

// scanRow scans a row from [sql.Rows] into a [models.FileEntry]
func (r *FileEntryRepository) scanRow(rows *sql.Rows) (*models.FileEntry, error) {
	entry, err := r.scan(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan file entry: %w", err)
	}
	return entry, nil
}
