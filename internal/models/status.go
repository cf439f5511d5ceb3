package models

import "fmt"

// ArchiveState enumerates the lifecycle of an [Archive].
type ArchiveState int

const (
	ArchiveNew ArchiveState = iota
	ArchiveDownloading
	ArchiveDownloaded
	ArchiveDownloadFailed
	ArchiveExaminingZip
	ArchiveProcessedZip
	ArchiveExtractionFailed
)

// ArchiveStates lists every state in lifecycle order.
var ArchiveStates = []ArchiveState{
	ArchiveNew, ArchiveDownloading, ArchiveDownloaded, ArchiveDownloadFailed,
	ArchiveExaminingZip, ArchiveProcessedZip, ArchiveExtractionFailed,
}

// String returns the persisted value of the state.
func (s ArchiveState) String() string {
	switch s {
	case ArchiveNew:
		return "new"
	case ArchiveDownloading:
		return "downloading"
	case ArchiveDownloaded:
		return "downloaded"
	case ArchiveDownloadFailed:
		return "download_failed"
	case ArchiveExaminingZip:
		return "examining_zip"
	case ArchiveProcessedZip:
		return "processed_zip"
	case ArchiveExtractionFailed:
		return "extraction_failed"
	default:
		return fmt.Sprintf("archive_state(%d)", int(s))
	}
}

// ParseArchiveState converts a persisted value back into an [ArchiveState].
func ParseArchiveState(s string) (ArchiveState, error) {
	for _, state := range ArchiveStates {
		if state.String() == s {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown archive state: %q", s)
}

// IsInFlight reports whether a unit of work currently owns an archive in this state.
func (s ArchiveState) IsInFlight() bool {
	return s == ArchiveDownloading || s == ArchiveExaminingZip
}

// IsFailure reports whether the state carries a failure reason.
func (s ArchiveState) IsFailure() bool {
	return s == ArchiveDownloadFailed || s == ArchiveExtractionFailed
}

// IsTerminal reports whether no stage will claim an archive in this state again.
func (s ArchiveState) IsTerminal() bool {
	return s == ArchiveProcessedZip || s.IsFailure()
}

// HasStagingFile reports whether an archive in this state must have a staged local file.
func (s ArchiveState) HasStagingFile() bool {
	return s == ArchiveDownloaded || s == ArchiveExaminingZip
}

// ArchiveStatus is the tagged status of an [Archive]. Reason is only set for failed states.
type ArchiveStatus struct {
	State  ArchiveState
	Reason string
}

// ArchiveStatusOf returns the reasonless status for state.
func ArchiveStatusOf(state ArchiveState) ArchiveStatus {
	return ArchiveStatus{State: state}
}

// DownloadFailed builds the failed download status.
func DownloadFailed(reason string) ArchiveStatus {
	return ArchiveStatus{State: ArchiveDownloadFailed, Reason: reason}
}

// ExtractionFailed builds the failed extraction status.
func ExtractionFailed(reason string) ArchiveStatus {
	return ArchiveStatus{State: ArchiveExtractionFailed, Reason: reason}
}

// String renders "state" or "state: reason".
func (s ArchiveStatus) String() string {
	if s.Reason == "" {
		return s.State.String()
	}
	return s.State.String() + ": " + s.Reason
}

// NewArchiveStatus rebuilds a status from its persisted columns, dropping a reason on non-failure states.
func NewArchiveStatus(state, reason string) (ArchiveStatus, error) {
	st, err := ParseArchiveState(state)
	if err != nil {
		return ArchiveStatus{}, err
	}
	if !st.IsFailure() {
		reason = ""
	}
	return ArchiveStatus{State: st, Reason: reason}, nil
}

// FileState enumerates the lifecycle of a [FileEntry].
type FileState int

const (
	FileUnassociated FileState = iota
	FileAssociated
	FileProcessing
	FileProcessed
	FileNoDate
	FileNoPair
	FileFailed
)

// FileStates lists every state in lifecycle order.
var FileStates = []FileState{
	FileUnassociated, FileAssociated, FileProcessing, FileProcessed, FileNoDate, FileNoPair, FileFailed,
}

// String returns the persisted value of the state.
func (s FileState) String() string {
	switch s {
	case FileUnassociated:
		return "unassociated"
	case FileAssociated:
		return "associated"
	case FileProcessing:
		return "processing"
	case FileProcessed:
		return "processed"
	case FileNoDate:
		return "no_date"
	case FileNoPair:
		return "no_pair"
	case FileFailed:
		return "failed"
	default:
		return fmt.Sprintf("file_state(%d)", int(s))
	}
}

// ParseFileState converts a persisted value back into a [FileState].
func ParseFileState(s string) (FileState, error) {
	for _, state := range FileStates {
		if state.String() == s {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown file state: %q", s)
}

// IsInFlight reports whether a unit of work currently owns an entry in this state.
func (s FileState) IsInFlight() bool {
	return s == FileProcessing
}

// IsFailure reports whether the state carries a failure reason.
func (s FileState) IsFailure() bool {
	return s == FileFailed
}

// IsParked reports whether the entry waits for an external change (a late pair or metadata repair).
func (s FileState) IsParked() bool {
	return s == FileNoDate || s == FileNoPair
}

// IsTerminal reports whether the entry finished, successfully or not.
func (s FileState) IsTerminal() bool {
	return s == FileProcessed || s == FileFailed
}

// FileStatus is the tagged status of a [FileEntry]. Reason is only set for [FileFailed].
type FileStatus struct {
	State  FileState
	Reason string
}

// FileStatusOf returns the reasonless status for state.
func FileStatusOf(state FileState) FileStatus {
	return FileStatus{State: state}
}

// Failed builds the failed file status.
func Failed(reason string) FileStatus {
	return FileStatus{State: FileFailed, Reason: reason}
}

// String renders "state" or "state: reason".
func (s FileStatus) String() string {
	if s.Reason == "" {
		return s.State.String()
	}
	return s.State.String() + ": " + s.Reason
}

// NewFileStatus rebuilds a status from its persisted columns, dropping a reason on non-failure states.
func NewFileStatus(state, reason string) (FileStatus, error) {
	st, err := ParseFileState(state)
	if err != nil {
		return FileStatus{}, err
	}
	if !st.IsFailure() {
		reason = ""
	}
	return FileStatus{State: st, Reason: reason}, nil
}
