// Package dpptest provides fixtures and a data provider mock for tests
// of the protocol engine and its callers.
package dpptest

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/blockberries/drive/dpp"
)

// OwnerID is the owner of fixture contracts and documents.
var OwnerID = dpp.GenerateID([]byte("fixture owner"))

// LockedOutPoint funds the fixture identity.
var LockedOutPoint = func() []byte {
	out := make([]byte, 36)
	copy(out, dpp.Hash([]byte("fixture outpoint")))
	return out
}()

// DocumentDefinitions returns the document types of the fixture contract.
func DocumentDefinitions() map[string]dpp.DocumentSchema {
	return map[string]dpp.DocumentSchema{
		"niceDocument": {
			Properties: map[string]dpp.PropertySchema{
				"name": {Type: "string", MaxLength: 64},
			},
		},
		"prettyDocument": {
			Properties: map[string]dpp.PropertySchema{
				"lastName": {Type: "string", MinLength: 1, MaxLength: 64},
				"age":      {Type: "integer"},
			},
			Required: []string{"lastName"},
		},
	}
}

// DataContract returns the fixture contract.
func DataContract() *dpp.DataContract {
	defs := DocumentDefinitions()
	id, err := dpp.DataContractID(OwnerID, defs)
	if err != nil {
		panic(err)
	}
	return &dpp.DataContract{
		ProtocolVersion: dpp.ProtocolVersion,
		ID:              id,
		OwnerID:         OwnerID,
		Documents:       defs,
	}
}

// Documents returns fixture documents belonging to contract.
func Documents(contract *dpp.DataContract) []*dpp.Document {
	engine := dpp.New(NewDataProvider())
	ctx := context.Background()
	specs := []struct {
		documentType string
		data         map[string]any
	}{
		{"niceDocument", map[string]any{"name": "Cutie"}},
		{"prettyDocument", map[string]any{"lastName": "Shiny"}},
		{"prettyDocument", map[string]any{"lastName": "Sweety", "age": uint64(7)}},
	}
	docs := make([]*dpp.Document, 0, len(specs))
	for _, s := range specs {
		doc, err := engine.Document().Create(ctx, contract, OwnerID, s.documentType, s.data)
		if err != nil {
			panic(err)
		}
		docs = append(docs, doc)
	}
	return docs
}

// PrivateKey returns a fresh secp256k1 key.
func PrivateKey() *btcec.PrivateKey {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		panic(err)
	}
	return priv
}

// IdentityCreateTransition returns an identity create transition signed
// by its only key, and that key.
func IdentityCreateTransition() (*dpp.IdentityCreateTransition, *btcec.PrivateKey) {
	priv := PrivateKey()
	key := dpp.NewIdentityPublicKey(1, priv.PubKey())
	st := dpp.NewIdentityCreateTransition(LockedOutPoint, []dpp.IdentityPublicKey{key})
	if err := st.Sign(key, priv); err != nil {
		panic(err)
	}
	return st, priv
}

// Identity returns the fixture identity.
func Identity() *dpp.Identity {
	return &dpp.Identity{
		ProtocolVersion: dpp.ProtocolVersion,
		ID:              dpp.IdentityID(LockedOutPoint),
		PublicKeys:      []dpp.IdentityPublicKey{dpp.NewIdentityPublicKey(1, PrivateKey().PubKey())},
		Balance:         10,
	}
}

// DataProvider is an in-memory dpp.DataProvider that records calls.
type DataProvider struct {
	mu            sync.Mutex
	dataContracts map[string]*dpp.DataContract
	identities    map[string]*dpp.Identity
	delay         time.Duration
	calls         int
}

var _ dpp.DataProvider = (*DataProvider)(nil)

// NewDataProvider creates an empty provider.
func NewDataProvider() *DataProvider {
	return &DataProvider{
		dataContracts: make(map[string]*dpp.DataContract),
		identities:    make(map[string]*dpp.Identity),
	}
}

// AddDataContract makes c available.
func (p *DataProvider) AddDataContract(c *dpp.DataContract) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dataContracts[c.ID] = c
}

// AddIdentity makes i available.
func (p *DataProvider) AddIdentity(i *dpp.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.identities[i.ID] = i
}

// SetDelay makes every fetch wait for d or until ctx is done.
func (p *DataProvider) SetDelay(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delay = d
}

// Calls returns the number of fetches served.
func (p *DataProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *DataProvider) wait(ctx context.Context) error {
	p.mu.Lock()
	p.calls++
	delay := p.delay
	p.mu.Unlock()
	if delay == 0 {
		return nil
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *DataProvider) FetchDataContract(ctx context.Context, id string) (*dpp.DataContract, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dataContracts[id], nil
}

func (p *DataProvider) FetchIdentity(ctx context.Context, id string) (*dpp.Identity, error) {
	if err := p.wait(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.identities[id], nil
}
