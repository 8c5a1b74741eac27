package rowstore

import "fmt"

// Store kinds accepted by NewStore.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// NewStore returns an uninitialized store of the given kind. The path is
// ignored by the memory backend.
func NewStore(kind, path string) (Store, error) {
	switch kind {
	case KindMemory:
		return NewMemoryStore(), nil
	case "", KindSQLite:
		return NewSQLiteStore(path), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}
