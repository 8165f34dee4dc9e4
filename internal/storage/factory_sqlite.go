//go:build sqlite

package storage

import "fmt"

func DefaultStoreKind() string {
	return "sqlite"
}

func newSQLiteStore(path string) (Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite store requires a database path")
	}
	return NewSQLiteStore(path), nil
}
