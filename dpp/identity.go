package dpp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
)

// KeyType is the algorithm of an identity public key.
type KeyType uint8

// KeyTypeECDSASecp256k1 is a compressed secp256k1 public key.
const KeyTypeECDSASecp256k1 KeyType = 0

// MaxIdentityPublicKeys bounds the number of keys on an identity.
const MaxIdentityPublicKeys = 10

// IdentityPublicKey is a key an identity signs with. Data is the
// base64-encoded compressed public key.
type IdentityPublicKey struct {
	ID        uint32  `cbor:"id"`
	Type      KeyType `cbor:"type" validate:"eq=0"`
	Data      string  `cbor:"data" validate:"required,base64"`
	IsEnabled bool    `cbor:"isEnabled"`
}

// RawIdentity is the plain object form of an identity.
type RawIdentity struct {
	ProtocolVersion uint32              `cbor:"protocolVersion"`
	ID              string              `cbor:"id" validate:"required,identifier"`
	PublicKeys      []IdentityPublicKey `cbor:"publicKeys" validate:"required,min=1,max=10,dive"`
	Balance         uint64              `cbor:"balance"`
}

// Identity is a platform account controlled by its public keys.
type Identity struct {
	ProtocolVersion uint32
	ID              string
	PublicKeys      []IdentityPublicKey
	Balance         uint64
}

// ToObject returns the plain object form of the identity.
func (i *Identity) ToObject() RawIdentity {
	return RawIdentity(*i)
}

// Serialize encodes the identity.
func (i *Identity) Serialize() ([]byte, error) {
	return Encode(i.ToObject())
}

// PublicKeyByID returns the key with the given id.
func (i *Identity) PublicKeyByID(id uint32) (IdentityPublicKey, bool) {
	return findPublicKey(i.PublicKeys, id)
}

// IdentityID derives an identity identifier from its locked outpoint.
func IdentityID(lockedOutPoint []byte) string {
	return GenerateID(lockedOutPoint)
}

type identityFacade struct {
	dpp *DPP
}

func (f *identityFacade) Create(_ context.Context, lockedOutPoint []byte, publicKeys []IdentityPublicKey) (*Identity, error) {
	return &Identity{
		ProtocolVersion: ProtocolVersion,
		ID:              IdentityID(lockedOutPoint),
		PublicKeys:      append([]IdentityPublicKey(nil), publicKeys...),
	}, nil
}

func (f *identityFacade) CreateFromObject(ctx context.Context, raw RawIdentity) (*Identity, error) {
	result, err := f.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !result.IsValid() {
		return nil, &InvalidIdentityError{Errors: result.Errors(), Raw: raw}
	}
	identity := Identity(raw)
	return &identity, nil
}

func (f *identityFacade) CreateFromSerialized(ctx context.Context, data []byte) (*Identity, error) {
	var raw RawIdentity
	cerr, err := decodeMetered(ctx, data, &raw)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, &InvalidIdentityError{Errors: []ConsensusError{cerr}}
	}
	return f.CreateFromObject(ctx, raw)
}

func (f *identityFacade) Validate(ctx context.Context, raw RawIdentity) (ValidationResult, error) {
	if err := checkpoint(ctx); err != nil {
		return ValidationResult{}, err
	}
	errs, err := f.dpp.schema.Validate(raw)
	if err != nil {
		return ValidationResult{}, err
	}
	if len(errs) > 0 {
		return NewValidationResult(errs...), nil
	}
	return NewValidationResult(validatePublicKeys(raw.PublicKeys)...), nil
}

// ApplyStateTransition returns the identity an identity create
// transition produces.
func (f *identityFacade) ApplyStateTransition(_ context.Context, st StateTransition) (*Identity, error) {
	create, ok := st.(*IdentityCreateTransition)
	if !ok {
		return nil, fmt.Errorf("state transition type %d does not create an identity", st.Type())
	}
	return &Identity{
		ProtocolVersion: ProtocolVersion,
		ID:              create.IdentityID(),
		PublicKeys:      create.PublicKeys(),
	}, nil
}

// validatePublicKeys checks that key ids are unique and key data parses.
func validatePublicKeys(keys []IdentityPublicKey) []ConsensusError {
	var errs []ConsensusError

	seen := make(map[uint32]bool, len(keys))
	var duplicates []uint32
	for _, k := range keys {
		if seen[k.ID] {
			duplicates = append(duplicates, k.ID)
		}
		seen[k.ID] = true
	}
	if len(duplicates) > 0 {
		errs = append(errs, &DuplicatedIdentityPublicKeyIDError{IDs: duplicates})
	}

	for _, k := range keys {
		if _, err := parsePublicKey(k); err != nil {
			errs = append(errs, &InvalidIdentityPublicKeyDataError{PublicKeyID: k.ID, Reason: err.Error()})
		}
	}
	return errs
}

func parsePublicKey(k IdentityPublicKey) (*btcec.PublicKey, error) {
	data, err := base64.StdEncoding.DecodeString(k.Data)
	if err != nil {
		return nil, err
	}
	if len(data) != btcec.PubKeyBytesLenCompressed {
		return nil, fmt.Errorf("expected %d bytes, got %d", btcec.PubKeyBytesLenCompressed, len(data))
	}
	return btcec.ParsePubKey(data)
}

func findPublicKey(keys []IdentityPublicKey, id uint32) (IdentityPublicKey, bool) {
	for _, k := range keys {
		if k.ID == id {
			return k, true
		}
	}
	return IdentityPublicKey{}, false
}

// NewIdentityPublicKey describes pub as an enabled secp256k1 identity key.
func NewIdentityPublicKey(id uint32, pub *btcec.PublicKey) IdentityPublicKey {
	return IdentityPublicKey{
		ID:        id,
		Type:      KeyTypeECDSASecp256k1,
		Data:      base64.StdEncoding.EncodeToString(pub.SerializeCompressed()),
		IsEnabled: true,
	}
}
