// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for claim ordering.
// Archives and file entries support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [ArchiveRepository] : Remote archives with download/extraction claims and a downstream cap
//   - [FileEntryRepository] : Extracted files with per-kind claims and pairing-key lookups
//   - [MediaRecordRepository] : Insert-once output records keyed by media entry
//
// Claims are a single conditional UPDATE that selects the oldest eligible row and moves it to its
// in-flight status in the same statement, so at most one caller wins each row.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
