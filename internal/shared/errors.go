package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")

	// Authentication errors
	ErrAuthFailed       = fmt.Errorf("authentication failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Remote storage errors
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrRemoteNotFound     = fmt.Errorf("remote item not found")

	// Pipeline errors, written into Failed-style statuses
	ErrTransport                = fmt.Errorf("transport error")
	ErrFormat                   = fmt.Errorf("format error")
	ErrIO                       = fmt.Errorf("io error")
	ErrAssociationInconsistency = fmt.Errorf("association inconsistency")

	// ErrDateUnresolved classifies a media file without any capture date. It parks the
	// entry and is never stored as a failure.
	ErrDateUnresolved = fmt.Errorf("date unresolved")

	// Persistence errors
	ErrNotFound = fmt.Errorf("not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// maxReasonLen bounds the diagnostic stored in a status column.
const maxReasonLen = 240

// Reason converts err into the short diagnostic string stored in a Failed-style status.
//
// Newlines are collapsed so the reason renders on one line in tables and logs.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if len(msg) > maxReasonLen {
		msg = msg[:maxReasonLen-3] + "..."
	}
	return msg
}

// Classify returns the pipeline taxonomy label for err, or "unknown".
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrAssociationInconsistency):
		return "association"
	case errors.Is(err, ErrDateUnresolved):
		return "date_unresolved"
	default:
		return "unknown"
	}
}
