// Package upload publishes summaries and reports to remote storage.
package upload

import "context"

// Uploader uploads local outputs to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	Preflight(ctx context.Context) error

	// UploadFile uploads a single file under the configured prefix and
	// returns its object key.
	UploadFile(ctx context.Context, localPath string) (string, error)

	// UploadDir uploads every file in localDir. The directory basename is
	// used as a sub-prefix. Files whose remote copy is current are skipped.
	UploadDir(ctx context.Context, localDir string) (Stats, error)
}

// Stats counts the files handled by UploadDir.
type Stats struct {
	Uploaded int
	Skipped  int
}
