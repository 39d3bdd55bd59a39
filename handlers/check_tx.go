package handlers

import (
	"context"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/state"
	"github.com/blockberries/drive/types"
)

// CheckTxHandler decides whether a transaction may enter the mempool.
type CheckTxHandler func(ctx context.Context, req Request, chainState state.BlockchainState) (types.GateVerdict, error)

// NewCheckTxHandler returns a handler that deserializes the transaction
// and, when rateLimitEnabled, applies the submitter quota. It has no side
// effects beyond the rate limiter counters.
func NewCheckTxHandler(engine dpp.Protocol, limiter RateLimiter, rateLimitEnabled bool, opts ...Option) CheckTxHandler {
	o := newOptions("check_tx", opts)

	return func(ctx context.Context, req Request, chainState state.BlockchainState) (types.GateVerdict, error) {
		st, err := decodeStateTransition(ctx, engine, req.Tx)
		if err != nil {
			logRejection(o.log, err, "transaction rejected")
			return types.GateVerdict{}, err
		}

		userID := st.SubmitterID()
		if rateLimitEnabled {
			if err := checkRateLimit(limiter, userID, chainState.LastBlockHeight()); err != nil {
				logRejection(o.log.With().Str("user_id", userID).Logger(), err, "transaction rate limited")
				return types.GateVerdict{}, err
			}
		}

		return types.GateVerdict{Code: 0, Sender: userID}, nil
	}
}
