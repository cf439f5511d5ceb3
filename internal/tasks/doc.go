// Package tasks implements the status-driven processing pipeline.
//
// # Scheduler
//
// [Scheduler] owns one concurrency budget per [Stage]:
//
//  1. [StageDownload] : new → downloading → downloaded | download_failed
//     - Streams the remote file into paths.downloads with progress
//     - Guarded by pipeline.max_downloaded (downloaded but not yet extracted archives)
//
//  2. [StageExamine] : downloaded → examining_zip → processed_zip | extraction_failed
//     - [Extractor] unpacks into paths.extract/<archive id>/ and registers one entry per file
//
//  3. [StageMediaProcess] : unassociated | associated → processing → processed | no_date | no_pair | failed
//     - [Associator] finds the sidecar, [DateResolver] picks the capture date, [Filer] moves the pair
//
//  4. [StageSidecarProcess] : unassociated → processing → associated | processed | no_pair | failed
//     - Handles sidecars whose media is absent, parked, failed or already filed
//
// Every claim is one conditional UPDATE in the repository, so an entity is never owned by two
// units. The in-flight counters only gate new claims. Units write exactly one terminal status and
// never return errors to the loop; failures are stored as the entity's status reason.
//
// # Progress Reporting
//
// Units report through a [ProgressSink] keyed by archive name or entry path.
// [ChannelSink] forwards [ProgressUpdate] values without blocking, using select with default.
//
// # Recovery
//
// Nothing is held in memory between ticks. After an interrupted run, [Scheduler.Recover] moves
// entities left in downloading, examining_zip or processing back to a claimable status.
package tasks
