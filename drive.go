// Package drive is the transaction-admission and block-execution layer
// of a full node. The consensus engine reaches the application through
// the [Lifecycle] interface; submitted transactions are serialized
// state transitions that are gate-checked before entering the mempool
// and executed in block order once decided.
package drive

import (
	"context"

	"github.com/blockberries/drive/types"
)

// Lifecycle is the interface the consensus engine drives.
//
// The engine guarantees the following call order:
//  1. Handshake is called exactly once, before anything else.
//  2. ExecuteBlock(h) is called exactly once per committed height h.
//  3. Commit is called exactly once after each ExecuteBlock.
//  4. CheckTx, Query may be called concurrently at any time after Handshake.
type Lifecycle interface {
	// Handshake is called once on every startup (cold start or restart).
	//
	// The engine communicates the last block it committed. If LastCommitted
	// is nil, this is a fresh genesis and Genesis will be populated.
	// The application returns its own view of its state so the engine can
	// detect divergence.
	Handshake(ctx context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error)

	// CheckTx gate-checks a serialized state transition before it enters
	// the mempool. Rejections are reported through the verdict code; a
	// returned error means the check itself could not be performed.
	//
	// This method MUST be safe for concurrent use.
	CheckTx(ctx context.Context, tx types.Tx, mctx types.MempoolContext) (types.GateVerdict, error)

	// ExecuteBlock executes every transaction of a finalized block in
	// order. Rejected transactions are reported in their TxOutcome; a
	// returned error aborts the block and must halt the node.
	//
	// State changes are staged and only persisted by Commit.
	ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error)

	// Commit persists all state changes from the last ExecuteBlock.
	// Either all changes land, or none do.
	Commit(ctx context.Context) (types.CommitResult, error)

	// Query reads committed application state.
	//
	// This method MUST be safe for concurrent use, including concurrent
	// with ExecuteBlock.
	Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error)
}

// Connection represents a transport-agnostic connection to a drive
// application. Both gRPC clients and in-process adapters implement this.
type Connection interface {
	Lifecycle

	// Close terminates the connection.
	Close() error
}
