package storage

import (
	"context"
	"time"
)

// ObjectStore abstracts the bulk object storage backend.
//
// Keys follow the convention datastores/{datastoreId}/...; DeleteFolder
// operates on that exact prefix and must never be handed an empty prefix.
type ObjectStore interface {
	// DeleteFolder removes every object under the given key prefix and
	// returns the number of objects deleted.
	DeleteFolder(ctx context.Context, prefix string) (int, error)

	// ListFolders returns the immediate child prefixes under the given
	// prefix (one level, delimiter "/").
	ListFolders(ctx context.Context, prefix string) ([]string, error)

	// PresignPutObject returns a time-limited upload URL for a key.
	PresignPutObject(ctx context.Context, key, contentType string, expires time.Duration) (string, error)

	// HealthCheck verifies connectivity to the backend.
	HealthCheck(ctx context.Context) error
}
