package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tfx/internal/models"
	"github.com/desertthunder/tfx/internal/shared"
)

const mediaRecordColumns = `id, sequence, media_entry_id, file_name, final_path, captured_at, raw_metadata, created_at`

// MediaRecordRepository persists [models.MediaRecord] values.
//
// Records are immutable: there is no Update or Delete, and Create is insert-once per media entry.
type MediaRecordRepository struct {
	db *sql.DB
}

// NewMediaRecordRepository creates a new MediaRecordRepository with the given database connection
func NewMediaRecordRepository(db *sql.DB) *MediaRecordRepository {
	return &MediaRecordRepository{db: db}
}

// Create inserts record unless one already exists for its media entry.
//
// Returns the stored record and whether this call created it. On a repeat call the existing record
// wins and record is left without an ID.
func (r *MediaRecordRepository) Create(record *models.MediaRecord) (*models.MediaRecord, bool, error) {
	if err := record.Validate(); err != nil {
		return nil, false, fmt.Errorf("validation failed: %w", err)
	}

	if existing, err := r.GetByMediaEntry(record.MediaEntryID()); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, false, err
	}

	sequence, err := NextSequence(r.db, "media_records")
	if err != nil {
		return nil, false, fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	var capturedAt any
	if !record.CapturedAt().IsZero() {
		capturedAt = record.CapturedAt()
	}

	result, err := r.db.Exec(`
		INSERT INTO media_records (id, sequence, media_entry_id, file_name, final_path, captured_at, raw_metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (media_entry_id) DO NOTHING
	`,
		id,
		sequence,
		record.MediaEntryID(),
		record.FileName(),
		record.FinalPath(),
		capturedAt,
		string(record.RawMetadata()),
		record.CreatedAt(),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert media record: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		existing, err := r.GetByMediaEntry(record.MediaEntryID())
		return existing, false, err
	}

	record.SetID(id)
	record.SetSequence(sequence)
	return record, true, nil
}

// Get retrieves a media record by ID
func (r *MediaRecordRepository) Get(id string) (*models.MediaRecord, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+mediaRecordColumns+` FROM media_records WHERE id = ?`, id))
}

// GetByMediaEntry retrieves the record created for a media entry
func (r *MediaRecordRepository) GetByMediaEntry(mediaEntryID string) (*models.MediaRecord, error) {
	return r.scanOne(r.db.QueryRow(`SELECT `+mediaRecordColumns+` FROM media_records WHERE media_entry_id = ?`, mediaEntryID))
}

// List retrieves media records in creation order.
//
// Supported criteria: "since" ([time.Time], inclusive lower bound on captured_at).
func (r *MediaRecordRepository) List(criteria map[string]any) ([]*models.MediaRecord, error) {
	query := `SELECT ` + mediaRecordColumns + ` FROM media_records WHERE 1 = 1`
	args := []any{}

	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND captured_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query media records: %w", err)
	}
	defer rows.Close()

	var records []*models.MediaRecord
	for rows.Next() {
		record, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return records, nil
}

// Count returns the number of stored records.
func (r *MediaRecordRepository) Count() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM media_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count media records: %w", err)
	}
	return n, nil
}

func (r *MediaRecordRepository) scan(row scanner) (*models.MediaRecord, error) {
	var (
		id           string
		sequence     int
		mediaEntryID string
		fileName     string
		finalPath    string
		capturedAt   sql.NullTime
		rawMetadata  string
		createdAt    time.Time
	)

	if err := row.Scan(&id, &sequence, &mediaEntryID, &fileName, &finalPath, &capturedAt, &rawMetadata, &createdAt); err != nil {
		return nil, err
	}

	var captured time.Time
	if capturedAt.Valid {
		captured = capturedAt.Time
	}

	record := models.NewMediaRecord(sequence, mediaEntryID, fileName, finalPath, captured, []byte(rawMetadata))
	record.SetID(id)
	record.SetCreatedAt(createdAt)
	return record, nil
}

// scanOne scans a single row into a [models.MediaRecord]
func (r *MediaRecordRepository) scanOne(row *sql.Row) (*models.MediaRecord, error) {
	record, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("media record %w", shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan media record: %w", err)
	}
	return record, nil
}
