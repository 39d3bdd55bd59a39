// Package dpp is the protocol engine: it builds, deserializes and
// validates data contracts, documents, identities and the state
// transitions that carry them.
//
// Every constructor either returns a valid entity or a typed error
// (InvalidDataContractError, InvalidDocumentError, InvalidIdentityError,
// InvalidStateTransitionError) holding at least one ConsensusError.
// Any other error is an infrastructure failure.
package dpp

import (
	"context"
)

// ProtocolVersion is stamped on every entity the engine creates.
const ProtocolVersion uint32 = 0

// DataProvider gives the engine read access to platform state.
// Both methods return nil and no error when the entity does not exist.
type DataProvider interface {
	FetchDataContract(ctx context.Context, id string) (*DataContract, error)
	FetchIdentity(ctx context.Context, id string) (*Identity, error)
}

// Protocol is the engine surface. It is implemented in-process by *DPP
// and inside an isolated execution context by isolation.IsolatedDpp.
type Protocol interface {
	DataContract() DataContractFacade
	Document() DocumentFacade
	Identity() IdentityFacade
	StateTransition() StateTransitionFacade
}

// DataContractFacade creates and validates data contracts.
type DataContractFacade interface {
	Create(ctx context.Context, ownerID string, documents map[string]DocumentSchema) (*DataContract, error)
	CreateFromObject(ctx context.Context, raw RawDataContract) (*DataContract, error)
	CreateFromSerialized(ctx context.Context, data []byte) (*DataContract, error)
	Validate(ctx context.Context, raw RawDataContract) (ValidationResult, error)
	CreateStateTransition(ctx context.Context, contract *DataContract) (StateTransition, error)
}

// DocumentFacade creates and validates documents.
type DocumentFacade interface {
	Create(ctx context.Context, contract *DataContract, ownerID, documentType string, data map[string]any) (*Document, error)
	CreateFromObject(ctx context.Context, raw RawDocument) (*Document, error)
	CreateFromSerialized(ctx context.Context, data []byte) (*Document, error)
	Validate(ctx context.Context, raw RawDocument) (ValidationResult, error)
	CreateStateTransition(ctx context.Context, actions []DocumentAction, documents []*Document) (StateTransition, error)
}

// IdentityFacade creates and validates identities.
type IdentityFacade interface {
	Create(ctx context.Context, lockedOutPoint []byte, publicKeys []IdentityPublicKey) (*Identity, error)
	CreateFromObject(ctx context.Context, raw RawIdentity) (*Identity, error)
	CreateFromSerialized(ctx context.Context, data []byte) (*Identity, error)
	Validate(ctx context.Context, raw RawIdentity) (ValidationResult, error)
	ApplyStateTransition(ctx context.Context, st StateTransition) (*Identity, error)
}

// StateTransitionFacade deserializes and validates state transitions.
type StateTransitionFacade interface {
	CreateFromObject(ctx context.Context, raw RawStateTransition) (StateTransition, error)
	CreateFromSerialized(ctx context.Context, data []byte) (StateTransition, error)
	// Validate runs structural and data validation.
	Validate(ctx context.Context, raw RawStateTransition) (ValidationResult, error)
	// ValidateData checks a structurally valid transition against
	// platform state.
	ValidateData(ctx context.Context, st StateTransition) (ValidationResult, error)
}

// Option configures a DPP.
type Option func(*DPP)

// WithSchemaValidator shares a compiled validator between engines.
func WithSchemaValidator(v *SchemaValidator) Option {
	return func(d *DPP) {
		d.schema = v
	}
}

// DPP is the in-process protocol engine.
type DPP struct {
	provider DataProvider
	schema   *SchemaValidator

	dataContracts    *dataContractFacade
	documents        *documentFacade
	identities       *identityFacade
	stateTransitions *stateTransitionFacade
}

var _ Protocol = (*DPP)(nil)

// New creates an engine reading platform state from provider.
func New(provider DataProvider, opts ...Option) *DPP {
	d := &DPP{
		provider: provider,
		schema:   defaultSchemaValidator,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.dataContracts = &dataContractFacade{d}
	d.documents = &documentFacade{d}
	d.identities = &identityFacade{d}
	d.stateTransitions = &stateTransitionFacade{d}
	return d
}

func (d *DPP) DataContract() DataContractFacade       { return d.dataContracts }
func (d *DPP) Document() DocumentFacade               { return d.documents }
func (d *DPP) Identity() IdentityFacade               { return d.identities }
func (d *DPP) StateTransition() StateTransitionFacade { return d.stateTransitions }

// decodeMetered charges the meter for data and decodes it into v.
// Undecodable bytes yield a SerializationError.
func decodeMetered(ctx context.Context, data []byte, v any) (ConsensusError, error) {
	if err := MeterFromContext(ctx).MeterMemory(MemoryKindRawData, uint64(len(data))); err != nil {
		return nil, err
	}
	if err := Decode(data, v); err != nil {
		return &SerializationError{Reason: err.Error()}, nil
	}
	return nil, nil
}
