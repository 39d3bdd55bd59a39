package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/drive"
	"github.com/blockberries/drive/app"
	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/dpp/dpptest"
	"github.com/blockberries/drive/dpp/isolation"
	"github.com/blockberries/drive/ratelimit"
	"github.com/blockberries/drive/storage"
	"github.com/blockberries/drive/types"
	"github.com/blockberries/drive/updatestate"
)

// stateService is an in-memory remote state service.
type stateService struct {
	mu        sync.Mutex
	contracts map[string]*dpp.DataContract
	applied   []*updatestate.ApplyStateTransitionRequest
	applyErr  error
	delay     time.Duration
	fetches   int
}

func newStateService(contracts ...*dpp.DataContract) *stateService {
	s := &stateService{contracts: map[string]*dpp.DataContract{}}
	for _, c := range contracts {
		s.contracts[c.ID] = c
	}
	return s
}

func (s *stateService) ApplyStateTransition(_ context.Context, req *updatestate.ApplyStateTransitionRequest) (*updatestate.ApplyStateTransitionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return nil, s.applyErr
	}
	s.applied = append(s.applied, req)
	return &updatestate.ApplyStateTransitionResponse{}, nil
}

func (s *stateService) FetchDataContract(ctx context.Context, id string) (*dpp.DataContract, error) {
	s.mu.Lock()
	s.fetches++
	delay := s.delay
	contract := s.contracts[id]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return contract, nil
}

type env struct {
	ctx      context.Context
	db       *badger.DB
	remote   *stateService
	contract *dpp.DataContract
	app      *app.App

	identityTx  types.Tx
	documentsTx types.Tx
}

type envConfig struct {
	rateLimit *ratelimit.Config
	isolation *isolation.Options
}

func quotaConfig(quota uint32) *ratelimit.Config {
	cfg := ratelimit.DefaultConfig()
	cfg.Quota = quota
	return &cfg
}

func newEnv(t *testing.T, cfg envConfig) *env {
	t.Helper()
	db, err := storage.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	contract := dpptest.DataContract()
	e := &env{
		ctx:      context.Background(),
		db:       db,
		remote:   newStateService(contract),
		contract: contract,
	}
	e.app = e.newApp(t, cfg)

	create, _ := dpptest.IdentityCreateTransition()
	e.identityTx, err = create.Serialize()
	require.NoError(t, err)

	docs := dpptest.Documents(contract)
	actions := make([]dpp.DocumentAction, len(docs))
	for i := range actions {
		actions[i] = dpp.DocumentActionCreate
	}
	st, err := dpp.New(dpptest.NewDataProvider()).Document().CreateStateTransition(e.ctx, actions, docs)
	require.NoError(t, err)
	e.documentsTx, err = st.Serialize()
	require.NoError(t, err)
	return e
}

func (e *env) newApp(t *testing.T, cfg envConfig) *app.App {
	t.Helper()
	provider, err := app.NewDataProvider(e.remote, storage.NewIdentityRepository(e.db), 16)
	require.NoError(t, err)

	var engine dpp.Protocol = dpp.New(provider)
	if cfg.isolation != nil {
		snapshot, err := isolation.CreateSnapshot(isolation.DefaultBundles()...)
		require.NoError(t, err)
		engine, err = isolation.New(snapshot, provider, *cfg.isolation)
		require.NoError(t, err)
	}

	params := app.Params{
		Engine:       engine,
		DataProvider: provider,
		Remote:       e.remote,
		DB:           e.db,
	}
	if cfg.rateLimit != nil {
		params.Limiter, err = ratelimit.New(*cfg.rateLimit)
		require.NoError(t, err)
		params.Quotas, err = ratelimit.NewLedger(*cfg.rateLimit)
		require.NoError(t, err)
		params.RateLimitEnabled = true
	}
	a, err := app.New(params)
	require.NoError(t, err)
	return a
}

func (e *env) genesis(t *testing.T) types.AppHash {
	t.Helper()
	resp, err := e.app.Handshake(e.ctx, types.HandshakeRequest{Genesis: &types.GenesisDoc{ChainID: "drive-test"}})
	require.NoError(t, err)
	require.Nil(t, resp.LastBlock)
	require.NotNil(t, resp.AppHash)
	return *resp.AppHash
}

func (e *env) executeAndCommit(t *testing.T, height uint64, txs ...types.Tx) types.BlockOutcome {
	t.Helper()
	outcome, err := e.app.ExecuteBlock(e.ctx, types.FinalizedBlock{Height: height, Txs: txs})
	require.NoError(t, err)
	_, err = e.app.Commit(e.ctx)
	require.NoError(t, err)
	return outcome
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := app.New(app.Params{})
	assert.Error(t, err)
}

func TestNew_RateLimitRequiresLedger(t *testing.T) {
	e := newEnv(t, envConfig{})
	limiter, err := ratelimit.New(ratelimit.DefaultConfig())
	require.NoError(t, err)

	_, err = app.New(app.Params{
		Engine:           dpp.New(dpptest.NewDataProvider()),
		DataProvider:     dpptest.NewDataProvider(),
		Remote:           e.remote,
		DB:               e.db,
		Limiter:          limiter,
		RateLimitEnabled: true,
	})
	assert.Error(t, err)
}

func TestCheckTx(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)

	verdict, err := e.app.CheckTx(e.ctx, e.identityTx, types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.True(t, verdict.Accepted())
	assert.NotEmpty(t, verdict.Sender)

	verdict, err = e.app.CheckTx(e.ctx, nil, types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.Equal(t, drive.CodeInvalidArgument, verdict.Code)
	assert.Equal(t, "Invalid argument: State Transition is not specified", verdict.Info)

	verdict, err = e.app.CheckTx(e.ctx, types.Tx("garbage"), types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.Equal(t, drive.CodeInvalidArgument, verdict.Code)
	assert.Equal(t, "Invalid argument: State Transition is invalid", verdict.Info)
	assert.NotEmpty(t, verdict.Data)

	// Admission has no side effects on storage or the remote service.
	assert.Empty(t, e.remote.applied)
	identity, err := e.app.Identities().Fetch(e.ctx, dpptest.Identity().ID, nil)
	require.NoError(t, err)
	assert.Nil(t, identity)
}

func TestCheckTx_SameOutcomeForSameState(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)

	for _, tx := range []types.Tx{e.identityTx, e.documentsTx, types.Tx("garbage"), nil} {
		first, err := e.app.CheckTx(e.ctx, tx, types.MempoolFirstSeen)
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			verdict, err := e.app.CheckTx(e.ctx, tx, types.MempoolRevalidation)
			require.NoError(t, err)
			assert.Equal(t, first, verdict)
		}
	}
}

func TestCheckTx_RateLimited(t *testing.T) {
	cfg := quotaConfig(1)
	e := newEnv(t, envConfig{rateLimit: cfg})
	e.genesis(t)

	verdict, err := e.app.CheckTx(e.ctx, e.identityTx, types.MempoolFirstSeen)
	require.NoError(t, err)
	require.True(t, verdict.Accepted())

	verdict, err = e.app.CheckTx(e.ctx, e.identityTx, types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.Equal(t, drive.CodeRateLimiterQuotaExceed, verdict.Code)
	assert.Equal(t, types.TagsFromMap(map[string]string{
		cfg.BannedKey:   verdict.Sender,
		"bannedUserIds": verdict.Sender,
	}), verdict.Tags)
}

func TestBlockLifecycle(t *testing.T) {
	e := newEnv(t, envConfig{})
	genesisHash := e.genesis(t)

	outcome, err := e.app.ExecuteBlock(e.ctx, types.FinalizedBlock{
		Height: 1,
		Txs:    []types.Tx{e.identityTx, e.documentsTx, types.Tx("garbage")},
	})
	require.NoError(t, err)
	require.Len(t, outcome.TxOutcomes, 3)
	assert.Equal(t, uint32(0), outcome.TxOutcomes[0].Code)
	assert.Equal(t, uint32(0), outcome.TxOutcomes[1].Code)
	assert.Equal(t, drive.CodeInvalidArgument, outcome.TxOutcomes[2].Code)
	for i, o := range outcome.TxOutcomes {
		assert.Equal(t, uint32(i), o.Index)
	}
	assert.NotEqual(t, genesisHash, outcome.AppHash)

	// Documents are applied remotely at the height of the executing block.
	require.Len(t, e.remote.applied, 1)
	assert.Equal(t, uint64(1), e.remote.applied[0].BlockHeight)
	assert.Equal(t, []byte(e.documentsTx), e.remote.applied[0].StateTransition)

	// Not visible before commit.
	identityID := dpptest.Identity().ID
	res, err := e.app.Query(e.ctx, types.StateQuery{Path: types.QueryPath("/identities/" + identityID)})
	require.NoError(t, err)
	assert.Equal(t, types.QueryCodeNotFound, res.Code)

	_, err = e.app.Commit(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e.app.ChainState().LastBlockHeight())
	assert.Equal(t, outcome.AppHash[:], e.app.ChainState().LastBlockAppHash())

	res, err = e.app.Query(e.ctx, types.StateQuery{Path: types.QueryPath("/identities/" + identityID)})
	require.NoError(t, err)
	require.Equal(t, types.QueryCodeOK, res.Code)
	assert.Equal(t, uint64(1), res.Height)
	var raw dpp.RawIdentity
	require.NoError(t, dpp.Decode(res.Value, &raw))
	assert.Equal(t, identityID, raw.ID)

	res, err = e.app.Query(e.ctx, types.StateQuery{Path: types.QueryPath("/dataContracts/" + e.contract.ID)})
	require.NoError(t, err)
	assert.Equal(t, types.QueryCodeOK, res.Code)

	res, err = e.app.Query(e.ctx, types.StateQuery{Path: "/balances/x"})
	require.NoError(t, err)
	assert.Equal(t, types.QueryCodeUnknown, res.Code)

	// Identity create of an existing identity is rejected in the next block.
	outcome = e.executeAndCommit(t, 2, e.identityTx)
	assert.Equal(t, drive.CodeInvalidArgument, outcome.TxOutcomes[0].Code)
	assert.Equal(t, "Invalid argument: Invalid Identity Create Transition", outcome.TxOutcomes[0].Info)
}

func TestCommit_WithoutBlock(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)
	_, err := e.app.Commit(e.ctx)
	assert.Error(t, err)
}

func TestHandshake_Restart(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)
	outcome := e.executeAndCommit(t, 1, e.identityTx)

	restarted := e.newApp(t, envConfig{})
	resp, err := restarted.Handshake(e.ctx, types.HandshakeRequest{LastCommitted: &types.BlockID{Height: 1}})
	require.NoError(t, err)
	require.NotNil(t, resp.LastBlock)
	assert.Equal(t, uint64(1), resp.LastBlock.Height)
	require.NotNil(t, resp.AppHash)
	assert.Equal(t, outcome.AppHash, *resp.AppHash)
}

func TestAppHash_Deterministic(t *testing.T) {
	a := newEnv(t, envConfig{})
	b := newEnv(t, envConfig{})
	a.genesis(t)
	b.genesis(t)

	outA := a.executeAndCommit(t, 1, a.identityTx, a.documentsTx)
	outB := b.executeAndCommit(t, 1, b.identityTx, b.documentsTx)
	assert.Equal(t, outA.AppHash, outB.AppHash)

	c := newEnv(t, envConfig{})
	c.genesis(t)
	outC := c.executeAndCommit(t, 1, c.documentsTx, c.identityTx)
	assert.NotEqual(t, outA.AppHash, outC.AppHash, "order matters")
}

func TestExecuteBlock_HaltsOnRemoteFailure(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)
	e.remote.applyErr = errors.New("connection refused")

	_, err := e.app.ExecuteBlock(e.ctx, types.FinalizedBlock{
		Height: 1,
		Txs:    []types.Tx{e.identityTx, e.documentsTx},
	})
	halt, ok := drive.IsHalt(err)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, uint64(1), halt.Height)

	// Writes of the failed block are discarded.
	_, err = e.app.Commit(e.ctx)
	assert.Error(t, err)
	identity, err := e.app.Identities().Fetch(e.ctx, dpptest.Identity().ID, nil)
	require.NoError(t, err)
	assert.Nil(t, identity)

	// The block can be executed again once the service recovers.
	e.remote.applyErr = nil
	outcome := e.executeAndCommit(t, 1, e.identityTx, e.documentsTx)
	assert.True(t, outcome.TxOutcomes[0].OK())
}

func TestIsolatedTimeout(t *testing.T) {
	opts := isolation.DefaultOptions()
	opts.Timeout = 50 * time.Millisecond
	e := newEnv(t, envConfig{isolation: &opts})
	e.genesis(t)
	e.remote.delay = time.Second

	verdict, err := e.app.CheckTx(e.ctx, e.documentsTx, types.MempoolFirstSeen)
	require.NoError(t, err)
	assert.Equal(t, drive.CodeExecutionTimedOut, verdict.Code)

	_, err = e.app.ExecuteBlock(e.ctx, types.FinalizedBlock{Height: 1, Txs: []types.Tx{e.documentsTx}})
	_, ok := drive.IsHalt(err)
	assert.True(t, ok, "got %v", err)
}

func TestIsolatedEngine_BlockLifecycle(t *testing.T) {
	opts := isolation.DefaultOptions()
	e := newEnv(t, envConfig{isolation: &opts})
	direct := newEnv(t, envConfig{})
	e.genesis(t)
	direct.genesis(t)

	got := e.executeAndCommit(t, 1, e.identityTx, e.documentsTx, types.Tx("garbage"))
	want := direct.executeAndCommit(t, 1, direct.identityTx, direct.documentsTx, types.Tx("garbage"))
	assert.Equal(t, want.AppHash, got.AppHash)
}

func TestExecuteBlock_DuplicateIdentityInBlock(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)

	outcome := e.executeAndCommit(t, 1, e.identityTx, e.identityTx)
	assert.Equal(t, uint32(0), outcome.TxOutcomes[0].Code)
	assert.Equal(t, drive.CodeInvalidArgument, outcome.TxOutcomes[1].Code)
	assert.Equal(t, "Invalid argument: Invalid Identity Create Transition", outcome.TxOutcomes[1].Info)

	identity, err := e.app.Identities().Fetch(e.ctx, dpptest.Identity().ID, nil)
	require.NoError(t, err)
	assert.NotNil(t, identity)
}

func TestExecuteBlock_RemoteHeight(t *testing.T) {
	e := newEnv(t, envConfig{})
	e.genesis(t)

	e.executeAndCommit(t, 1)
	e.executeAndCommit(t, 2, e.documentsTx)
	require.Len(t, e.remote.applied, 1)
	assert.Equal(t, uint64(2), e.remote.applied[0].BlockHeight)
}

// Mempool traffic seen by one node only must not change block results.
func TestExecuteBlock_RateLimitIndependentOfMempool(t *testing.T) {
	a := newEnv(t, envConfig{rateLimit: quotaConfig(1)})
	b := newEnv(t, envConfig{rateLimit: quotaConfig(1)})
	a.genesis(t)
	b.genesis(t)

	verdict, err := a.app.CheckTx(a.ctx, a.documentsTx, types.MempoolFirstSeen)
	require.NoError(t, err)
	require.True(t, verdict.Accepted())

	outA := a.executeAndCommit(t, 1, a.documentsTx)
	outB := b.executeAndCommit(t, 1, b.documentsTx)
	assert.Equal(t, uint32(0), outA.TxOutcomes[0].Code)
	assert.Equal(t, uint32(0), outB.TxOutcomes[0].Code)
	assert.Equal(t, outA.AppHash, outB.AppHash)
	assert.Len(t, a.remote.applied, 1)
	assert.Len(t, b.remote.applied, 1)

	// The quota is used up on both nodes within the window.
	outA = a.executeAndCommit(t, 2, a.documentsTx)
	outB = b.executeAndCommit(t, 2, b.documentsTx)
	assert.Equal(t, drive.CodeRateLimiterQuotaExceed, outA.TxOutcomes[0].Code)
	assert.Equal(t, drive.CodeRateLimiterQuotaExceed, outB.TxOutcomes[0].Code)
	assert.Equal(t, outA.AppHash, outB.AppHash)
}

func TestExecuteBlock_QuotaSurvivesRestart(t *testing.T) {
	cfg := envConfig{rateLimit: quotaConfig(1)}
	e := newEnv(t, cfg)
	e.genesis(t)
	e.executeAndCommit(t, 1, e.documentsTx)

	e.app = e.newApp(t, cfg)
	_, err := e.app.Handshake(e.ctx, types.HandshakeRequest{LastCommitted: &types.BlockID{Height: 1}})
	require.NoError(t, err)

	outcome := e.executeAndCommit(t, 2, e.documentsTx)
	assert.Equal(t, drive.CodeRateLimiterQuotaExceed, outcome.TxOutcomes[0].Code)
}

func TestExecuteBlock_UncommittedQuotaDiscarded(t *testing.T) {
	e := newEnv(t, envConfig{rateLimit: quotaConfig(1)})
	e.genesis(t)

	outcome, err := e.app.ExecuteBlock(e.ctx, types.FinalizedBlock{Height: 1, Txs: []types.Tx{e.documentsTx}})
	require.NoError(t, err)
	require.Equal(t, uint32(0), outcome.TxOutcomes[0].Code)

	// The same block executed again, e.g. after a restart of consensus.
	again := e.executeAndCommit(t, 1, e.documentsTx)
	assert.Equal(t, uint32(0), again.TxOutcomes[0].Code)
	assert.Equal(t, outcome.AppHash, again.AppHash)
}
