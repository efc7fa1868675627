// Package txn retrieves precompiled instruction streams ("transactions") by
// key. Transactions are produced and shipped out-of-band by the kernel build
// pipeline; this package only covers the retrieval side, and treats every
// stream as an opaque binary blob.
package txn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound reports that a store holds no transaction for the given key
var ErrNotFound = errors.New("transaction not found")

// Store is keyed retrieval of precompiled instruction streams
type Store interface {
	// Transaction returns the instruction stream registered under key.
	// If no such transaction exists, the error wraps ErrNotFound.
	Transaction(ctx context.Context, key string) ([]byte, error)
}

// MapStore is an in-memory Store for tests and offline tooling
type MapStore map[string][]byte

var _ Store = (MapStore)(nil)

func (m MapStore) Transaction(ctx context.Context, key string) ([]byte, error) {
	data, ok := m[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// DirStore serves transactions from <Dir>/<key>.bin
type DirStore struct {
	Dir string
}

var _ Store = (*DirStore)(nil)

func (s *DirStore) Transaction(ctx context.Context, key string) ([]byte, error) {
	path := filepath.Join(s.Dir, key+".bin")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("key %q (%s): %w", key, path, ErrNotFound)
		}
		return nil, fmt.Errorf("reading transaction %q: %w", key, err)
	}
	return data, nil
}
