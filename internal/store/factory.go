package store

import (
	"fmt"
	"path/filepath"
)

// Open creates a Store based on the backend configuration.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "badger", "":
		return OpenBadgerStore(filepath.Join(dataDir, "store"))
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
