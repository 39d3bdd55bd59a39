package storage

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"github.com/blockberries/drive/state"
)

// InsertChainTip stores the state of the last committed block.
func InsertChainTip(s state.BlockchainState) func(*badger.Txn) error {
	rec := s.ToRecord()
	return upsert(recordCodec, []byte(keyChainTip), &rec)
}

// RetrieveChainTip loads the state of the last committed block. The
// boolean is false when nothing was committed yet.
func RetrieveChainTip(db *badger.DB) (state.BlockchainState, bool, error) {
	var rec state.Record
	err := db.View(retrieve(recordCodec, []byte(keyChainTip), &rec))
	if errors.Is(err, ErrNotFound) {
		return state.BlockchainState{}, false, nil
	}
	if err != nil {
		return state.BlockchainState{}, false, fmt.Errorf("could not retrieve chain tip: %w", err)
	}
	return state.FromRecord(rec), true, nil
}
