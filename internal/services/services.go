// package services defines interface Remote for reading Takeout archives from remote storage
//
// Google Drive (v3 REST API)
package services

import (
	"context"
	"io"

	"github.com/desertthunder/tfx/internal/models"
)

// Remote defines the remote storage capability the pipeline consumes: list a folder and stream one file.
type Remote interface {
	// List returns every item directly inside folderID. Folders are included and flagged.
	List(ctx context.Context, folderID string) ([]models.RemoteItem, error)

	// Download opens a byte stream for the file id. The caller closes Body.
	Download(ctx context.Context, id string) (*Download, error)

	// Name returns the name of the remote (e.g., "Google Drive")
	Name() string
}

// Download is an open remote file stream. Size is -1 when the remote did not report a length.
type Download struct {
	Name string
	Size int64
	Body io.ReadCloser
}
