package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/blockberries/drive/dpp"
)

// IdentityRepository stores identities keyed by id.
type IdentityRepository struct {
	db *badger.DB
}

// NewIdentityRepository returns a repository backed by db.
func NewIdentityRepository(db *badger.DB) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Store writes identity within txn. A nil txn writes in a transaction of
// its own.
func (r *IdentityRepository) Store(ctx context.Context, identity *dpp.Identity, txn *badger.Txn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	op := upsert(entityCodec, makeIdentityKey(identity.ID), identity.ToObject())
	if txn != nil {
		return op(txn)
	}
	return r.db.Update(op)
}

// Fetch reads the identity with id within txn, or from committed state
// when txn is nil. It returns nil when no identity is stored.
func (r *IdentityRepository) Fetch(ctx context.Context, id string, txn *badger.Txn) (*dpp.Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var raw dpp.RawIdentity
	op := retrieve(entityCodec, makeIdentityKey(id), &raw)

	var err error
	if txn != nil {
		err = op(txn)
	} else {
		err = r.db.View(op)
	}
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not retrieve identity %s: %w", id, err)
	}
	identity := dpp.Identity(raw)
	return &identity, nil
}
