package storage

import (
	"fmt"

	"github.com/hyperjump/mentis/internal/vector"
)

// Backend names a vector store implementation.
type Backend string

const (
	// BackendSQLite persists collections in a SQLite file searched with sqlite-vec.
	BackendSQLite Backend = "sqlite"
	// BackendMemory keeps collections in memory, optionally snapshotted to a file.
	BackendMemory Backend = "memory"
)

// Open returns the vector store for backend at path.
// For the memory backend an empty path disables the snapshot.
func Open(backend string, path string) (vector.Store, error) {
	switch Backend(backend) {
	case BackendSQLite, "":
		return NewSQLiteStore(path)
	case BackendMemory:
		return vector.NewMemoryStore(path)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s (supported: sqlite, memory)", backend)
	}
}
