// Package app is the drive application: it admits state transitions into
// the mempool, executes blocks and answers state queries.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/rs/zerolog"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/dpp/isolation"
	"github.com/blockberries/drive/handlers"
	"github.com/blockberries/drive/metrics"
	"github.com/blockberries/drive/ratelimit"
	"github.com/blockberries/drive/state"
	"github.com/blockberries/drive/storage"
	"github.com/blockberries/drive/types"
)

// Compile-time interface check.
var _ drive.Lifecycle = (*App)(nil)

const (
	pathIdentities    = "/identities/"
	pathDataContracts = "/dataContracts/"
)

// Params are the collaborators of an App.
type Params struct {
	Engine       dpp.Protocol
	DataProvider dpp.DataProvider
	Remote       handlers.RemoteStateClient
	DB           *badger.DB
	// Limiter is the mempool limiter consulted by CheckTx.
	Limiter handlers.RateLimiter
	// Quotas is the ledger consulted by block execution. Its records are
	// committed with every block.
	Quotas *ratelimit.Ledger
	// Limiter and Quotas may be nil when RateLimitEnabled is false.
	RateLimitEnabled bool
}

// Option configures an App.
type Option func(*App)

// WithLogger sets the application logger.
func WithLogger(log zerolog.Logger) Option {
	return func(a *App) {
		a.log = log
	}
}

// WithMetrics sets the collector execution is reported to.
func WithMetrics(m metrics.ExecutionMetrics) Option {
	return func(a *App) {
		a.metrics = m
	}
}

// App implements drive.Lifecycle.
type App struct {
	db       *badger.DB
	provider dpp.DataProvider
	repo     *storage.IdentityRepository
	txs      *storage.BlockExecutionTransactions
	tip      *state.ChainTip
	quotas   *ratelimit.Ledger

	// The block being executed, as seen by DeliverTx.
	executing *state.ChainTip

	checkTx   handlers.CheckTxHandler
	deliverTx handlers.DeliverTxHandler

	log     zerolog.Logger
	metrics metrics.ExecutionMetrics

	// Serializes block execution and commit.
	mu     sync.Mutex
	staged *state.BlockchainState
}

// New creates an App.
func New(p Params, opts ...Option) (*App, error) {
	if p.Engine == nil || p.DataProvider == nil || p.Remote == nil || p.DB == nil {
		return nil, errors.New("app: engine, data provider, remote client and database are required")
	}
	if p.RateLimitEnabled && (p.Limiter == nil || p.Quotas == nil) {
		return nil, errors.New("app: rate limiting enabled without a limiter and a quota ledger")
	}

	a := &App{
		db:       p.DB,
		provider: p.DataProvider,
		repo:     storage.NewIdentityRepository(p.DB),
		txs:      storage.NewBlockExecutionTransactions(p.DB),
		tip:      state.NewChainTip(state.BlockchainState{}),
		quotas:   p.Quotas,
		log:      zerolog.Nop(),
		metrics:  metrics.NewNoopCollector(),

		executing: state.NewChainTip(state.BlockchainState{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With().Str("component", "app").Logger()

	a.checkTx = handlers.NewCheckTxHandler(p.Engine, p.Limiter, p.RateLimitEnabled,
		handlers.WithLogger(a.log))
	var quotas handlers.RateLimiter
	if p.Quotas != nil {
		quotas = p.Quotas
	}
	a.deliverTx = handlers.NewDeliverTxHandler(p.Engine, p.Remote, a.executing, a.repo, a.txs,
		quotas, p.RateLimitEnabled, handlers.WithLogger(a.log))
	return a, nil
}

// Identities returns the repository identities are persisted in.
func (a *App) Identities() *storage.IdentityRepository {
	return a.repo
}

// ChainState returns the state of the last committed block.
func (a *App) ChainState() state.BlockchainState {
	return a.tip.Get()
}

func (a *App) Handshake(_ context.Context, req types.HandshakeRequest) (types.HandshakeResponse, error) {
	tip, ok, err := storage.RetrieveChainTip(a.db)
	if err != nil {
		return types.HandshakeResponse{}, err
	}
	if a.quotas != nil {
		records, err := storage.RetrieveQuotas(a.db)
		if err != nil {
			return types.HandshakeResponse{}, err
		}
		a.quotas.Restore(records)
	}

	if !ok {
		var chainID string
		if req.Genesis != nil {
			if err := req.Genesis.GenesisTime.Validate(); err != nil {
				return types.HandshakeResponse{}, fmt.Errorf("app: invalid genesis: %w", err)
			}
			chainID = req.Genesis.ChainID
		}
		h := genesisAppHash(chainID)
		a.tip.Set(state.New(0, h[:]))
		a.log.Info().Str("chain_id", chainID).Msg("starting from genesis")
		return types.HandshakeResponse{AppHash: &h}, nil
	}

	a.tip.Set(tip)
	var h types.AppHash
	copy(h[:], tip.LastBlockAppHash())
	a.log.Info().Uint64("height", tip.LastBlockHeight()).Msg("resuming from committed state")
	return types.HandshakeResponse{
		LastBlock: &types.BlockID{Height: tip.LastBlockHeight()},
		AppHash:   &h,
	}, nil
}

func (a *App) CheckTx(ctx context.Context, tx types.Tx, _ types.MempoolContext) (types.GateVerdict, error) {
	start := time.Now()
	verdict, err := a.checkTx(ctx, handlers.Request{Tx: tx}, a.tip.Get())
	if err != nil {
		r, ok := a.rejection(err)
		if !ok {
			return types.GateVerdict{}, err
		}
		verdict = types.GateVerdict{Code: r.code, Info: r.info, Data: r.data, Tags: r.tags}
	}
	a.metrics.TransactionChecked(verdict.Code, time.Since(start))
	return verdict, nil
}

func (a *App) ExecuteBlock(ctx context.Context, block types.FinalizedBlock) (types.BlockOutcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	start := time.Now()
	// A block executed but never committed is discarded.
	a.txs.Abort()
	a.discardQuotas()
	a.staged = nil
	if err := a.txs.Start(); err != nil {
		return types.BlockOutcome{}, err
	}
	prev := a.tip.Get()
	a.executing.Set(state.New(block.Height, prev.LastBlockAppHash()))

	outcomes := make([]types.TxOutcome, len(block.Txs))
	for i, tx := range block.Txs {
		outcome, err := a.deliverTx(ctx, handlers.Request{Tx: tx})
		if err != nil {
			r, ok := a.rejection(err)
			if !ok || r.code == drive.CodeExecutionTimedOut {
				a.txs.Abort()
				a.discardQuotas()
				a.log.Error().Err(err).Uint64("height", block.Height).Int("index", i).Msg("block execution halted")
				return types.BlockOutcome{}, drive.WrapHalt(block.Height, "transaction execution failed", err)
			}
			outcome = types.TxOutcome{Code: r.code, Info: r.info, Data: r.data, Tags: r.tags}
		}
		outcome.Index = uint32(i)
		outcomes[i] = outcome
		a.metrics.TransactionDelivered(outcome.Code)
	}

	appHash := computeAppHash(prev.LastBlockAppHash(), block.Height, block.Txs, outcomes)
	staged := state.New(block.Height, appHash[:])
	a.staged = &staged

	elapsed := time.Since(start)
	a.metrics.BlockExecuted(block.Height, len(block.Txs), elapsed)
	ev := a.log.Info().
		Uint64("height", block.Height).
		Int("txs", len(block.Txs))
	if !block.Time.IsZero() {
		ev = ev.Time("block_time", block.Time.Time())
	}
	ev.
		Dur("duration", elapsed).
		Hex("app_hash", appHash[:]).
		Msg("block executed")

	return types.BlockOutcome{
		TxOutcomes: outcomes,
		AppHash:    appHash,
	}, nil
}

func (a *App) Commit(_ context.Context) (types.CommitResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.staged == nil {
		return types.CommitResult{}, errors.New("app: commit without an executed block")
	}
	ops := []func(*badger.Txn) error{storage.InsertChainTip(*a.staged)}
	if a.quotas != nil {
		ops = append(ops, storage.InsertQuotas(a.quotas.Staged()))
	}
	if err := a.txs.Commit(ops...); err != nil {
		return types.CommitResult{}, fmt.Errorf("app: commit height %d: %w", a.staged.LastBlockHeight(), err)
	}
	if a.quotas != nil {
		a.quotas.Commit()
	}
	a.tip.Set(*a.staged)
	a.log.Debug().Uint64("height", a.staged.LastBlockHeight()).Msg("block committed")
	a.staged = nil

	return types.CommitResult{RetainHeight: 0}, nil
}

func (a *App) Query(ctx context.Context, req types.StateQuery) (types.StateQueryResult, error) {
	path := string(req.Path)
	height := a.tip.LastBlockHeight()

	var (
		value []byte
		found bool
		err   error
	)
	switch {
	case strings.HasPrefix(path, pathIdentities):
		id := strings.TrimPrefix(path, pathIdentities)
		var identity *dpp.Identity
		if identity, err = a.repo.Fetch(ctx, id, nil); err == nil && identity != nil {
			found = true
			value, err = identity.Serialize()
		}
	case strings.HasPrefix(path, pathDataContracts):
		id := strings.TrimPrefix(path, pathDataContracts)
		var contract *dpp.DataContract
		if contract, err = a.provider.FetchDataContract(ctx, id); err == nil && contract != nil {
			found = true
			value, err = contract.Serialize()
		}
	default:
		return types.StateQueryResult{
			Code:   types.QueryCodeUnknown,
			Height: height,
			Info:   fmt.Sprintf("unknown query path %q", path),
		}, nil
	}
	if err != nil {
		return types.StateQueryResult{}, err
	}
	if !found {
		return types.StateQueryResult{
			Code:   types.QueryCodeNotFound,
			Key:    []byte(path),
			Height: height,
		}, nil
	}
	return types.StateQueryResult{
		Code:   types.QueryCodeOK,
		Key:    []byte(path),
		Value:  value,
		Height: height,
	}, nil
}

func (a *App) discardQuotas() {
	if a.quotas != nil {
		a.quotas.Discard()
	}
}

type rejection struct {
	code uint32
	info string
	data []byte
	tags []types.Tag
}

// rejection converts err into a response code. The boolean is false for
// errors that are failures of the node rather than of the transaction.
func (a *App) rejection(err error) (rejection, bool) {
	if abciErr, ok := drive.AsAbciError(err); ok {
		r := rejection{
			code: abciErr.Code,
			info: abciErr.Message,
			tags: types.TagsFromMap(abciErr.Tags),
		}
		if len(abciErr.Data) > 0 {
			data, encErr := dpp.Encode(abciErr.Data)
			if encErr != nil {
				a.log.Warn().Err(encErr).Msg("could not encode rejection data")
			} else {
				r.data = data
			}
		}
		return r, true
	}
	if _, ok := isolation.IsResourceExceeded(err); ok {
		return rejection{code: drive.CodeExecutionTimedOut, info: err.Error()}, true
	}
	return rejection{}, false
}
