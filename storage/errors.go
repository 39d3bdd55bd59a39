package storage

import "errors"

var (
	// ErrNotFound is returned when a key has no value. Callers never see
	// badger.ErrKeyNotFound.
	ErrNotFound = errors.New("key not found")

	// ErrTransactionNotStarted is returned when a block transaction is
	// requested outside of block execution.
	ErrTransactionNotStarted = errors.New("block transaction not started")

	// ErrTransactionStarted is returned when a block transaction is started
	// twice.
	ErrTransactionStarted = errors.New("block transaction already started")
)
