package app

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/handlers"
)

// ContractFetcher loads data contracts from the state service.
type ContractFetcher interface {
	FetchDataContract(ctx context.Context, id string) (*dpp.DataContract, error)
}

// DataProvider serves the protocol engine: data contracts come from the
// state service through an LRU cache, identities from committed local
// state.
type DataProvider struct {
	remote     ContractFetcher
	identities handlers.IdentityRepository
	contracts  *lru.Cache[string, *dpp.DataContract]
}

var _ dpp.DataProvider = (*DataProvider)(nil)

// NewDataProvider creates a DataProvider caching up to cacheSize data
// contracts.
func NewDataProvider(remote ContractFetcher, identities handlers.IdentityRepository, cacheSize int) (*DataProvider, error) {
	contracts, err := lru.New[string, *dpp.DataContract](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create data contract cache: %w", err)
	}
	return &DataProvider{
		remote:     remote,
		identities: identities,
		contracts:  contracts,
	}, nil
}

// FetchDataContract returns the data contract with id. Unknown contracts
// are not cached so that a later deployment becomes visible.
func (p *DataProvider) FetchDataContract(ctx context.Context, id string) (*dpp.DataContract, error) {
	if contract, ok := p.contracts.Get(id); ok {
		return contract, nil
	}
	contract, err := p.remote.FetchDataContract(ctx, id)
	if err != nil {
		return nil, err
	}
	if contract != nil {
		p.contracts.Add(id, contract)
	}
	return contract, nil
}

// FetchIdentity returns the committed identity with id.
func (p *DataProvider) FetchIdentity(ctx context.Context, id string) (*dpp.Identity, error) {
	return p.identities.Fetch(ctx, id, nil)
}
