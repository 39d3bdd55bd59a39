// Package state holds the node's view of the chain tip.
package state

import (
	"bytes"
	"sync/atomic"
)

// BlockchainState is an immutable snapshot of the last committed block.
type BlockchainState struct {
	lastBlockHeight  uint64
	lastBlockAppHash []byte
}

// New creates a BlockchainState. The app hash is copied.
func New(lastBlockHeight uint64, lastBlockAppHash []byte) BlockchainState {
	return BlockchainState{
		lastBlockHeight:  lastBlockHeight,
		lastBlockAppHash: bytes.Clone(lastBlockAppHash),
	}
}

// LastBlockHeight returns the height of the last committed block.
// Zero means no block has been committed.
func (s BlockchainState) LastBlockHeight() uint64 { return s.lastBlockHeight }

// LastBlockAppHash returns a copy of the app hash of the last committed block.
func (s BlockchainState) LastBlockAppHash() []byte { return bytes.Clone(s.lastBlockAppHash) }

// Record is the persisted form of a BlockchainState.
type Record struct {
	LastBlockHeight  uint64 `cramberry:"1"`
	LastBlockAppHash []byte `cramberry:"2"`
}

// ToRecord converts the state into its persisted form.
func (s BlockchainState) ToRecord() Record {
	return Record{LastBlockHeight: s.lastBlockHeight, LastBlockAppHash: s.LastBlockAppHash()}
}

// FromRecord rebuilds a BlockchainState from its persisted form.
func FromRecord(r Record) BlockchainState {
	return New(r.LastBlockHeight, r.LastBlockAppHash)
}

// ChainTip is a concurrency-safe holder of the current BlockchainState.
// Readers get a consistent snapshot; the application swaps it at block
// boundaries.
type ChainTip struct {
	current atomic.Pointer[BlockchainState]
}

// NewChainTip creates a ChainTip initialised to s.
func NewChainTip(s BlockchainState) *ChainTip {
	t := &ChainTip{}
	t.Set(s)
	return t
}

// Get returns the current state.
func (t *ChainTip) Get() BlockchainState {
	if s := t.current.Load(); s != nil {
		return *s
	}
	return BlockchainState{}
}

// Set replaces the current state.
func (t *ChainTip) Set(s BlockchainState) {
	t.current.Store(&s)
}

// LastBlockHeight returns the height of the current state.
func (t *ChainTip) LastBlockHeight() uint64 {
	return t.Get().LastBlockHeight()
}
