package handlers_test

import (
	"context"
	"sync"

	"github.com/dgraph-io/badger/v2"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/types"
	"github.com/blockberries/drive/updatestate"
)

type engineMock struct {
	stateTransitions *stateTransitionFacadeMock
	identities       *identityFacadeMock
}

func newEngineMock() *engineMock {
	return &engineMock{
		stateTransitions: &stateTransitionFacadeMock{transitions: map[string]dpp.StateTransition{}},
		identities:       &identityFacadeMock{},
	}
}

func (e *engineMock) DataContract() dpp.DataContractFacade       { return nil }
func (e *engineMock) Document() dpp.DocumentFacade               { return nil }
func (e *engineMock) Identity() dpp.IdentityFacade               { return e.identities }
func (e *engineMock) StateTransition() dpp.StateTransitionFacade { return e.stateTransitions }

type stateTransitionFacadeMock struct {
	dpp.StateTransitionFacade

	transitions    map[string]dpp.StateTransition
	createErr      error
	validateResult dpp.ValidationResult
	validateErr    error

	created   [][]byte
	validated []dpp.StateTransition
}

func (m *stateTransitionFacadeMock) add(tx []byte, st dpp.StateTransition) {
	m.transitions[string(tx)] = st
}

func (m *stateTransitionFacadeMock) CreateFromSerialized(_ context.Context, data []byte) (dpp.StateTransition, error) {
	m.created = append(m.created, data)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.transitions[string(data)], nil
}

func (m *stateTransitionFacadeMock) ValidateData(_ context.Context, st dpp.StateTransition) (dpp.ValidationResult, error) {
	m.validated = append(m.validated, st)
	return m.validateResult, m.validateErr
}

type identityFacadeMock struct {
	dpp.IdentityFacade

	identity *dpp.Identity
	applied  []dpp.StateTransition
}

func (m *identityFacadeMock) ApplyStateTransition(_ context.Context, st dpp.StateTransition) (*dpp.Identity, error) {
	m.applied = append(m.applied, st)
	return m.identity, nil
}

type limiterMock struct {
	mu        sync.Mutex
	banned    bool
	exceeded  bool
	bannedKey string
	windows   []uint64
}

func (l *limiterMock) Window(height uint64) uint64 { return height / 10 }

func (l *limiterMock) IsBannedUser(_ string, window uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows = append(l.windows, window)
	return l.banned
}

func (l *limiterMock) IsQuotaExceeded(_ string, _ uint64) bool {
	return l.exceeded
}

func (l *limiterMock) GetBannedKey() string { return l.bannedKey }

func (l *limiterMock) CreateUserTag(userID string) types.Tag {
	return types.Tag{Key: "userId", Value: userID}
}

type remoteMock struct {
	err      error
	requests []*updatestate.ApplyStateTransitionRequest
}

func (r *remoteMock) ApplyStateTransition(_ context.Context, req *updatestate.ApplyStateTransitionRequest) (*updatestate.ApplyStateTransitionResponse, error) {
	r.requests = append(r.requests, req)
	if r.err != nil {
		return nil, r.err
	}
	return &updatestate.ApplyStateTransitionResponse{}, nil
}

type repositoryMock struct {
	identities map[string]*dpp.Identity
	dropWrites bool

	stores  []*badger.Txn
	fetches []*badger.Txn
}

func newRepositoryMock() *repositoryMock {
	return &repositoryMock{identities: map[string]*dpp.Identity{}}
}

func (r *repositoryMock) Store(_ context.Context, identity *dpp.Identity, txn *badger.Txn) error {
	r.stores = append(r.stores, txn)
	if !r.dropWrites {
		r.identities[identity.ID] = identity
	}
	return nil
}

func (r *repositoryMock) Fetch(_ context.Context, id string, txn *badger.Txn) (*dpp.Identity, error) {
	r.fetches = append(r.fetches, txn)
	return r.identities[id], nil
}

type txRegistryMock struct {
	txn *badger.Txn
}

func (m txRegistryMock) GetIdentityTransaction() (*badger.Txn, error) {
	return m.txn, nil
}

// unknownTransition reports a type no handler routes.
type unknownTransition struct {
	dpp.StateTransition
}

func (unknownTransition) Type() dpp.Type { return dpp.Type(42) }
