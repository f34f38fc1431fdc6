// Package artifact stores preprocessed audio files between upload and
// provider processing. Backends: local filesystem and Amazon S3 (or
// S3-compatible services). Artifacts are keyed per user and job and removed
// once the retention window passes.
package artifact

import (
	"context"
	"fmt"
	"io"
	"time"
)

// Store defines the operations the pipeline needs from artifact storage.
type Store interface {
	// Put writes the artifact at key from reader.
	Put(ctx context.Context, key string, reader io.Reader) error

	// Get returns a reader for the artifact at key. The caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the artifact at key. Missing artifacts are not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an artifact is present at key.
	Exists(ctx context.Context, key string) (bool, error)
}

// Key builds the canonical artifact key for a job's audio file.
func Key(userID, jobID, filename string) string {
	return fmt.Sprintf("users/%s/jobs/%s/%s", userID, jobID, filename)
}

// Info contains metadata about a stored artifact.
type Info struct {
	Key          string
	Size         int64
	LastModified time.Time
}
