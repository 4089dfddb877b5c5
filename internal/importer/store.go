package importer

import (
	"context"
	"fmt"

	"awical/internal/model"
)

// Store is the storage collaborator that holds one bucket of activity
// records per source.
type Store interface {
	// GetEvents returns every record currently in bucket.
	GetEvents(ctx context.Context, bucket string) ([]model.ActivityRecord, error)
	// InsertEvents inserts records into bucket in a single request.
	InsertEvents(ctx context.Context, bucket string, records []model.ActivityRecord) error
}

// TransportError is returned by Store implementations when the destination
// is unreachable or rejects a request. The importer never retries.
type TransportError struct {
	Op     string
	Bucket string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Bucket, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
