package dpp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Type tags a state transition.
type Type uint8

const (
	TypeDataContract   Type = 1
	TypeDocuments      Type = 2
	TypeIdentityCreate Type = 3
)

func (t Type) String() string {
	if k, ok := stateTransitionKinds[t]; ok {
		return k.name
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Types lists every declared state transition type.
func Types() []Type {
	return []Type{TypeDataContract, TypeDocuments, TypeIdentityCreate}
}

// RawStateTransition is the plain object form of a state transition.
// Only the fields of its Type are set.
type RawStateTransition struct {
	ProtocolVersion      uint32              `cbor:"protocolVersion"`
	Type                 Type                `cbor:"type"`
	DataContract         *RawDataContract    `cbor:"dataContract,omitempty"`
	Actions              []DocumentAction    `cbor:"actions,omitempty"`
	Documents            []RawDocument       `cbor:"documents,omitempty"`
	LockedOutPoint       string              `cbor:"lockedOutPoint,omitempty"`
	PublicKeys           []IdentityPublicKey `cbor:"publicKeys,omitempty"`
	SignaturePublicKeyID uint32              `cbor:"signaturePublicKeyId,omitempty"`
	Signature            string              `cbor:"signature,omitempty"`
}

// StateTransition is a typed request to change platform state. Values
// are produced only by the engine.
type StateTransition interface {
	Type() Type
	// SubmitterID identifies who submitted the transition.
	SubmitterID() string
	ToObject() RawStateTransition
	Serialize() ([]byte, error)

	stateTransition()
}

// DataContractTransition publishes a data contract.
type DataContractTransition struct {
	raw RawStateTransition
}

func (t *DataContractTransition) Type() Type                 { return TypeDataContract }
func (t *DataContractTransition) SubmitterID() string        { return t.raw.DataContract.OwnerID }
func (t *DataContractTransition) Serialize() ([]byte, error) { return Encode(t.raw) }
func (t *DataContractTransition) stateTransition()           {}

func (t *DataContractTransition) ToObject() RawStateTransition {
	raw := t.raw
	contract := *t.raw.DataContract
	raw.DataContract = &contract
	return raw
}

// DataContract returns the published contract.
func (t *DataContractTransition) DataContract() *DataContract {
	c := DataContract(*t.raw.DataContract)
	return &c
}

// DocumentsTransition creates, replaces or deletes documents.
type DocumentsTransition struct {
	raw RawStateTransition
}

func (t *DocumentsTransition) Type() Type                   { return TypeDocuments }
func (t *DocumentsTransition) SubmitterID() string          { return t.raw.Documents[0].OwnerID }
func (t *DocumentsTransition) ToObject() RawStateTransition { return t.raw }
func (t *DocumentsTransition) Serialize() ([]byte, error)   { return Encode(t.raw) }
func (t *DocumentsTransition) stateTransition()             {}

// Documents returns the documents the transition acts on.
func (t *DocumentsTransition) Documents() []*Document {
	docs := make([]*Document, len(t.raw.Documents))
	for i, raw := range t.raw.Documents {
		d := Document(raw)
		docs[i] = &d
	}
	return docs
}

// Actions returns the action applied to each document.
func (t *DocumentsTransition) Actions() []DocumentAction {
	return append([]DocumentAction(nil), t.raw.Actions...)
}

// IdentityCreateTransition registers a new identity funded by a locked
// outpoint and signed by one of its keys.
type IdentityCreateTransition struct {
	raw        RawStateTransition
	identityID string
}

// NewIdentityCreateTransition builds an unsigned identity create transition.
func NewIdentityCreateTransition(lockedOutPoint []byte, publicKeys []IdentityPublicKey) *IdentityCreateTransition {
	return &IdentityCreateTransition{
		raw: RawStateTransition{
			ProtocolVersion: ProtocolVersion,
			Type:            TypeIdentityCreate,
			LockedOutPoint:  base64.StdEncoding.EncodeToString(lockedOutPoint),
			PublicKeys:      append([]IdentityPublicKey(nil), publicKeys...),
		},
		identityID: IdentityID(lockedOutPoint),
	}
}

func (t *IdentityCreateTransition) Type() Type                   { return TypeIdentityCreate }
func (t *IdentityCreateTransition) SubmitterID() string          { return t.identityID }
func (t *IdentityCreateTransition) ToObject() RawStateTransition { return t.raw }
func (t *IdentityCreateTransition) Serialize() ([]byte, error)   { return Encode(t.raw) }
func (t *IdentityCreateTransition) stateTransition()             {}

// IdentityID returns the id of the identity the transition creates.
func (t *IdentityCreateTransition) IdentityID() string { return t.identityID }

// PublicKeys returns the keys of the new identity.
func (t *IdentityCreateTransition) PublicKeys() []IdentityPublicKey {
	return append([]IdentityPublicKey(nil), t.raw.PublicKeys...)
}

// Sign signs the transition with priv, which must belong to key.
func (t *IdentityCreateTransition) Sign(key IdentityPublicKey, priv *btcec.PrivateKey) error {
	t.raw.SignaturePublicKeyID = key.ID
	hash, err := signableHash(t.raw)
	if err != nil {
		return err
	}
	sig := ecdsa.Sign(priv, hash)
	t.raw.Signature = base64.StdEncoding.EncodeToString(sig.Serialize())
	return nil
}

// VerifySignature checks the signature against the signing public key.
func (t *IdentityCreateTransition) VerifySignature() ConsensusError {
	key, ok := findPublicKey(t.raw.PublicKeys, t.raw.SignaturePublicKeyID)
	if !ok {
		return &MissingPublicKeyError{PublicKeyID: t.raw.SignaturePublicKeyID}
	}
	pub, err := parsePublicKey(key)
	if err != nil {
		return &InvalidIdentityPublicKeyDataError{PublicKeyID: key.ID, Reason: err.Error()}
	}
	der, err := base64.StdEncoding.DecodeString(t.raw.Signature)
	if err != nil {
		return &InvalidStateTransitionSignatureError{}
	}
	sig, err := ecdsa.ParseDERSignature(der)
	if err != nil {
		return &InvalidStateTransitionSignatureError{}
	}
	hash, err := signableHash(t.raw)
	if err != nil || !sig.Verify(hash, pub) {
		return &InvalidStateTransitionSignatureError{}
	}
	return nil
}

// signableHash hashes the transition without its signature.
func signableHash(raw RawStateTransition) ([]byte, error) {
	raw.Signature = ""
	data, err := Encode(raw)
	if err != nil {
		return nil, fmt.Errorf("could not encode state transition: %w", err)
	}
	return Hash(data), nil
}

// stateTransitionKind describes how the engine handles one Type.
type stateTransitionKind struct {
	name string
	// validateStructure checks a raw transition of this kind.
	validateStructure func(ctx context.Context, d *DPP, raw RawStateTransition) ([]ConsensusError, error)
	// build wraps a structurally valid raw transition.
	build func(raw RawStateTransition) (StateTransition, error)
	// validateData checks a transition against platform state.
	validateData func(ctx context.Context, d *DPP, st StateTransition) ([]ConsensusError, error)
}

var stateTransitionKinds = map[Type]stateTransitionKind{
	TypeDataContract: {
		name:              "DataContract",
		validateStructure: validateDataContractStructure,
		build: func(raw RawStateTransition) (StateTransition, error) {
			if raw.DataContract == nil {
				return nil, fmt.Errorf("data contract transition without data contract")
			}
			return &DataContractTransition{raw: raw}, nil
		},
		validateData: validateDataContractData,
	},
	TypeDocuments: {
		name:              "Documents",
		validateStructure: validateDocumentsStructure,
		build: func(raw RawStateTransition) (StateTransition, error) {
			if len(raw.Documents) == 0 {
				return nil, fmt.Errorf("documents transition without documents")
			}
			return &DocumentsTransition{raw: raw}, nil
		},
		validateData: validateDocumentsData,
	},
	TypeIdentityCreate: {
		name:              "IdentityCreate",
		validateStructure: validateIdentityCreateStructure,
		build: func(raw RawStateTransition) (StateTransition, error) {
			outPoint, err := base64.StdEncoding.DecodeString(raw.LockedOutPoint)
			if err != nil {
				return nil, fmt.Errorf("could not decode locked outpoint: %w", err)
			}
			return &IdentityCreateTransition{raw: raw, identityID: IdentityID(outPoint)}, nil
		},
		validateData: validateIdentityCreateData,
	},
}

// RestoreStateTransition wraps a raw transition that was already
// validated by an engine, without validating it again.
func RestoreStateTransition(raw RawStateTransition) (StateTransition, error) {
	kind, ok := stateTransitionKinds[raw.Type]
	if !ok {
		return nil, fmt.Errorf("unknown state transition type %d", raw.Type)
	}
	return kind.build(raw)
}

func validateDataContractStructure(ctx context.Context, d *DPP, raw RawStateTransition) ([]ConsensusError, error) {
	if raw.DataContract == nil {
		return []ConsensusError{&JSONSchemaError{Keyword: "required", DataPath: ".dataContract"}}, nil
	}
	result, err := d.dataContracts.Validate(ctx, *raw.DataContract)
	if err != nil {
		return nil, err
	}
	return result.Errors(), nil
}

func validateDataContractData(ctx context.Context, d *DPP, st StateTransition) ([]ConsensusError, error) {
	t, ok := st.(*DataContractTransition)
	if !ok {
		return nil, fmt.Errorf("unexpected %T for a data contract transition", st)
	}
	contract := t.DataContract()
	existing, err := d.provider.FetchDataContract(ctx, contract.ID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return []ConsensusError{&DataContractAlreadyPresentError{DataContractID: contract.ID}}, nil
	}
	return nil, nil
}

type documentsFields struct {
	Actions   []DocumentAction `cbor:"actions" validate:"required,min=1,dive,oneof=1 2 3"`
	Documents []RawDocument    `cbor:"documents" validate:"required,min=1"`
}

func validateDocumentsStructure(ctx context.Context, d *DPP, raw RawStateTransition) ([]ConsensusError, error) {
	errs, err := d.schema.Validate(documentsFields{Actions: raw.Actions, Documents: raw.Documents})
	if err != nil || len(errs) > 0 {
		return errs, err
	}
	if len(raw.Actions) != len(raw.Documents) {
		return []ConsensusError{&JSONSchemaError{
			Keyword:  "len",
			DataPath: ".actions",
			Param:    fmt.Sprint(len(raw.Documents)),
		}}, nil
	}
	owner := raw.Documents[0].OwnerID
	for i, doc := range raw.Documents {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		if doc.OwnerID != owner {
			errs = append(errs, &JSONSchemaError{
				Keyword:  "const",
				DataPath: fmt.Sprintf(".documents[%d].$ownerId", i),
				Param:    owner,
			})
			continue
		}
		result, err := d.documents.Validate(ctx, doc)
		if err != nil {
			return nil, err
		}
		errs = append(errs, result.Errors()...)
	}
	return errs, nil
}

func validateDocumentsData(ctx context.Context, d *DPP, st StateTransition) ([]ConsensusError, error) {
	t, ok := st.(*DocumentsTransition)
	if !ok {
		return nil, fmt.Errorf("unexpected %T for a documents transition", st)
	}
	var errs []ConsensusError
	checked := make(map[string]bool)
	for _, doc := range t.Documents() {
		if checked[doc.DataContractID] {
			continue
		}
		checked[doc.DataContractID] = true
		contract, err := d.provider.FetchDataContract(ctx, doc.DataContractID)
		if err != nil {
			return nil, err
		}
		if contract == nil {
			errs = append(errs, &DataContractNotPresentError{DataContractID: doc.DataContractID})
		}
	}
	return errs, nil
}

type identityCreateFields struct {
	LockedOutPoint string              `cbor:"lockedOutPoint" validate:"required,base64,len=48"`
	PublicKeys     []IdentityPublicKey `cbor:"publicKeys" validate:"required,min=1,max=10,dive"`
	Signature      string              `cbor:"signature" validate:"required,base64"`
}

func validateIdentityCreateStructure(_ context.Context, d *DPP, raw RawStateTransition) ([]ConsensusError, error) {
	errs, err := d.schema.Validate(identityCreateFields{
		LockedOutPoint: raw.LockedOutPoint,
		PublicKeys:     raw.PublicKeys,
		Signature:      raw.Signature,
	})
	if err != nil || len(errs) > 0 {
		return errs, err
	}
	return validatePublicKeys(raw.PublicKeys), nil
}

func validateIdentityCreateData(ctx context.Context, d *DPP, st StateTransition) ([]ConsensusError, error) {
	create, ok := st.(*IdentityCreateTransition)
	if !ok {
		return nil, fmt.Errorf("unexpected %T for an identity create transition", st)
	}
	if cerr := create.VerifySignature(); cerr != nil {
		return []ConsensusError{cerr}, nil
	}
	existing, err := d.provider.FetchIdentity(ctx, create.IdentityID())
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return []ConsensusError{&IdentityAlreadyExistsError{IdentityID: create.IdentityID()}}, nil
	}
	return nil, nil
}

type stateTransitionFacade struct {
	dpp *DPP
}

func (f *stateTransitionFacade) CreateFromObject(ctx context.Context, raw RawStateTransition) (StateTransition, error) {
	kind, ok := stateTransitionKinds[raw.Type]
	if !ok {
		return nil, &InvalidStateTransitionError{
			Errors: []ConsensusError{&InvalidStateTransitionTypeError{Type: raw.Type}},
			Raw:    &raw,
		}
	}
	errs, err := kind.validateStructure(ctx, f.dpp, raw)
	if err != nil {
		return nil, err
	}
	if len(errs) > 0 {
		return nil, &InvalidStateTransitionError{Errors: errs, Raw: &raw}
	}
	return kind.build(raw)
}

func (f *stateTransitionFacade) CreateFromSerialized(ctx context.Context, data []byte) (StateTransition, error) {
	var raw RawStateTransition
	cerr, err := decodeMetered(ctx, data, &raw)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, &InvalidStateTransitionError{Errors: []ConsensusError{cerr}}
	}
	return f.CreateFromObject(ctx, raw)
}

func (f *stateTransitionFacade) Validate(ctx context.Context, raw RawStateTransition) (ValidationResult, error) {
	st, err := f.CreateFromObject(ctx, raw)
	if err != nil {
		var invalid *InvalidStateTransitionError
		if errors.As(err, &invalid) {
			return NewValidationResult(invalid.Errors...), nil
		}
		return ValidationResult{}, err
	}
	return f.ValidateData(ctx, st)
}

func (f *stateTransitionFacade) ValidateData(ctx context.Context, st StateTransition) (ValidationResult, error) {
	kind, ok := stateTransitionKinds[st.Type()]
	if !ok {
		return NewValidationResult(&InvalidStateTransitionTypeError{Type: st.Type()}), nil
	}
	if err := checkpoint(ctx); err != nil {
		return ValidationResult{}, err
	}
	errs, err := kind.validateData(ctx, f.dpp, st)
	if err != nil {
		return ValidationResult{}, err
	}
	return NewValidationResult(errs...), nil
}
