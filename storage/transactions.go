package storage

import (
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v2"
)

// BlockExecutionTransactions holds the write transaction shared by all
// state changes of the block being executed.
type BlockExecutionTransactions struct {
	db *badger.DB

	mu       sync.Mutex
	identity *badger.Txn
}

// NewBlockExecutionTransactions returns a registry for db.
func NewBlockExecutionTransactions(db *badger.DB) *BlockExecutionTransactions {
	return &BlockExecutionTransactions{db: db}
}

// Start opens the block transaction.
func (b *BlockExecutionTransactions) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity != nil {
		return ErrTransactionStarted
	}
	b.identity = b.db.NewTransaction(true)
	return nil
}

// IsStarted reports whether a block transaction is open.
func (b *BlockExecutionTransactions) IsStarted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.identity != nil
}

// GetIdentityTransaction returns the open transaction identity writes go
// through.
func (b *BlockExecutionTransactions) GetIdentityTransaction() (*badger.Txn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil {
		return nil, ErrTransactionNotStarted
	}
	return b.identity, nil
}

// Commit applies ops to the open transaction and commits it.
func (b *BlockExecutionTransactions) Commit(ops ...func(*badger.Txn) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity == nil {
		return ErrTransactionNotStarted
	}
	txn := b.identity
	b.identity = nil
	defer txn.Discard()

	for _, op := range ops {
		if err := op(txn); err != nil {
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return fmt.Errorf("could not commit block transaction: %w", err)
	}
	return nil
}

// Abort discards the open transaction, if any.
func (b *BlockExecutionTransactions) Abort() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.identity != nil {
		b.identity.Discard()
		b.identity = nil
	}
}
