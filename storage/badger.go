// Package storage persists identities and the chain tip in badger.
// Writes made while executing a block share one badger transaction that is
// committed or discarded with the block.
package storage

import (
	"fmt"

	"github.com/dgraph-io/badger/v2"
)

// Open opens the database in dir. An empty dir opens an in-memory database.
func Open(dir string) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	return db, nil
}
