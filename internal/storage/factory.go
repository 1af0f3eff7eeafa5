package storage

import (
	"fmt"
	"strings"
)

// NewStore builds the backend named by kind. The sqlite backend is only
// compiled in with the sqlite build tag; DefaultStoreKind reports which
// backend a build prefers.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", kind)
	}
}

// CloseIfSupported releases stores that hold resources, such as the sqlite
// connection. The memory store has nothing to close.
func CloseIfSupported(store Store) error {
	closer, ok := store.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}
