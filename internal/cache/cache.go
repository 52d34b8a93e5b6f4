package cache

import (
	"context"
	"errors"
)

// SnapshotKeyPrefix namespaces feed snapshots; one key per viewer.
const SnapshotKeyPrefix = "feed:snapshot:"

// SnapshotKey returns the cache key holding viewerID's feed snapshot.
func SnapshotKey(viewerID string) string {
	return SnapshotKeyPrefix + viewerID
}

var ErrNotFound = errors.New("cache entry not found")

//go:generate go run go.uber.org/mock/mockgen -source=cache.go -destination=mocks/mock.go

// Store is durable key/value storage for feed snapshots. Last writer wins
// per key; the engine is the only writer of snapshot keys.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, overwriting any prior value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys lists all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
