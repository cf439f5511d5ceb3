// Package models defines domain entities and persistence interfaces for the tfx Takeout pipeline.
//
// The package contains three categories of types:
//
// 1. Persistent Entities: Database-backed models with full lifecycle management
//   - [Archive] : One remote compressed export and its download/extraction lifecycle
//   - [FileEntry] : One file unpacked from an archive, either media or sidecar
//   - [MediaRecord] : Durable output created once a media/sidecar pair has been filed
//
// 2. Status Variants: Tagged unions replacing free-form status strings
//   - [ArchiveStatus] : [ArchiveState] plus the reason carried by failed states
//   - [FileStatus] : [FileState] plus the reason carried by [FileFailed]
//
// 3. Data Transfer Objects: Lightweight structs for external data
//   - [RemoteItem] : One file or folder returned by a remote listing
//   - [SidecarPayload] : The Takeout JSON metadata describing one media file
//
// All persistent entities implement the Model interface providing ID generation, timestamps, and validation.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
