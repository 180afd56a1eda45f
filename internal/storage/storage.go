// Package storage moves serialized cassettes between backends. Stores treat
// cassette bytes as opaque: serialization stays in the cassette package.
package storage

import "context"

// ObjectInfo describes one stored cassette.
type ObjectInfo struct {
	// Key is the backend-relative path, e.g. "2026-01-02/GET__checkout__0f8b4a2c.json".
	Key  string
	Size int64
}

// Store is a sink/source of serialized cassette bytes.
type Store interface {
	// Put writes the bytes under key, overwriting any previous object.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// List enumerates objects under the optional key prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
