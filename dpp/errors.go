package dpp

import (
	"fmt"
	"strings"
)

// Consensus error codes. A code identifies the concrete error type on
// both sides of a serialization boundary.
const (
	CodeJSONSchema                      uint32 = 1000
	CodeSerialization                   uint32 = 1001
	CodeInvalidStateTransitionType      uint32 = 1002
	CodeInvalidDocumentType             uint32 = 1003
	CodeDataContractNotPresent          uint32 = 1004
	CodeDataContractAlreadyPresent      uint32 = 1005
	CodeInvalidIdentityPublicKeyData    uint32 = 1006
	CodeDuplicatedIdentityPublicKeyID   uint32 = 1007
	CodeMissingPublicKey                uint32 = 1008
	CodeInvalidStateTransitionSignature uint32 = 1009
	CodeIdentityAlreadyExists           uint32 = 1010
	CodeDocumentData                    uint32 = 1011
	CodeGeneric                         uint32 = 1999
)

// ConsensusError is a structured protocol validation failure.
type ConsensusError interface {
	error
	Code() uint32
}

// JSONSchemaError reports a structural violation of an entity schema.
type JSONSchemaError struct {
	Keyword  string `cbor:"keyword"`
	DataPath string `cbor:"dataPath"`
	Param    string `cbor:"param,omitempty"`
}

func (e *JSONSchemaError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s should satisfy %q (%s)", e.DataPath, e.Keyword, e.Param)
	}
	return fmt.Sprintf("%s should satisfy %q", e.DataPath, e.Keyword)
}

func (e *JSONSchemaError) Code() uint32 { return CodeJSONSchema }

// SerializationError reports bytes that cannot be decoded.
type SerializationError struct {
	Reason string `cbor:"reason"`
}

func (e *SerializationError) Error() string {
	return "could not decode serialized data: " + e.Reason
}

func (e *SerializationError) Code() uint32 { return CodeSerialization }

// InvalidStateTransitionTypeError reports an unrecognised transition type.
type InvalidStateTransitionTypeError struct {
	Type Type `cbor:"type"`
}

func (e *InvalidStateTransitionTypeError) Error() string {
	return fmt.Sprintf("invalid state transition type %d", e.Type)
}

func (e *InvalidStateTransitionTypeError) Code() uint32 { return CodeInvalidStateTransitionType }

// InvalidDocumentTypeError reports a document type not defined by its
// data contract.
type InvalidDocumentTypeError struct {
	DocumentType   string `cbor:"documentType"`
	DataContractID string `cbor:"dataContractId"`
}

func (e *InvalidDocumentTypeError) Error() string {
	return fmt.Sprintf("data contract %s doesn't define document type %q", e.DataContractID, e.DocumentType)
}

func (e *InvalidDocumentTypeError) Code() uint32 { return CodeInvalidDocumentType }

// DocumentDataError reports document data that violates the document
// type schema.
type DocumentDataError struct {
	DocumentType string `cbor:"documentType"`
	Property     string `cbor:"property"`
	Reason       string `cbor:"reason"`
}

func (e *DocumentDataError) Error() string {
	return fmt.Sprintf("document %q property %q: %s", e.DocumentType, e.Property, e.Reason)
}

func (e *DocumentDataError) Code() uint32 { return CodeDocumentData }

// DataContractNotPresentError reports a reference to an unknown contract.
type DataContractNotPresentError struct {
	DataContractID string `cbor:"dataContractId"`
}

func (e *DataContractNotPresentError) Error() string {
	return fmt.Sprintf("data contract %s is not present", e.DataContractID)
}

func (e *DataContractNotPresentError) Code() uint32 { return CodeDataContractNotPresent }

// DataContractAlreadyPresentError reports an attempt to publish an
// existing contract.
type DataContractAlreadyPresentError struct {
	DataContractID string `cbor:"dataContractId"`
}

func (e *DataContractAlreadyPresentError) Error() string {
	return fmt.Sprintf("data contract %s is already present", e.DataContractID)
}

func (e *DataContractAlreadyPresentError) Code() uint32 { return CodeDataContractAlreadyPresent }

// InvalidIdentityPublicKeyDataError reports key bytes that do not parse.
type InvalidIdentityPublicKeyDataError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
	Reason      string `cbor:"reason"`
}

func (e *InvalidIdentityPublicKeyDataError) Error() string {
	return fmt.Sprintf("invalid data for public key %d: %s", e.PublicKeyID, e.Reason)
}

func (e *InvalidIdentityPublicKeyDataError) Code() uint32 { return CodeInvalidIdentityPublicKeyData }

// DuplicatedIdentityPublicKeyIDError reports repeated key ids.
type DuplicatedIdentityPublicKeyIDError struct {
	IDs []uint32 `cbor:"ids"`
}

func (e *DuplicatedIdentityPublicKeyIDError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return "duplicated public key ids: " + strings.Join(ids, ", ")
}

func (e *DuplicatedIdentityPublicKeyIDError) Code() uint32 { return CodeDuplicatedIdentityPublicKeyID }

// MissingPublicKeyError reports a signature made with an unknown key.
type MissingPublicKeyError struct {
	PublicKeyID uint32 `cbor:"publicKeyId"`
}

func (e *MissingPublicKeyError) Error() string {
	return fmt.Sprintf("public key %d is missing", e.PublicKeyID)
}

func (e *MissingPublicKeyError) Code() uint32 { return CodeMissingPublicKey }

// InvalidStateTransitionSignatureError reports a signature that does not
// verify.
type InvalidStateTransitionSignatureError struct{}

func (e *InvalidStateTransitionSignatureError) Error() string {
	return "invalid state transition signature"
}

func (e *InvalidStateTransitionSignatureError) Code() uint32 {
	return CodeInvalidStateTransitionSignature
}

// IdentityAlreadyExistsError reports an identity create for an existing id.
type IdentityAlreadyExistsError struct {
	IdentityID string `cbor:"identityId"`
}

func (e *IdentityAlreadyExistsError) Error() string {
	return fmt.Sprintf("identity %s already exists", e.IdentityID)
}

func (e *IdentityAlreadyExistsError) Code() uint32 { return CodeIdentityAlreadyExists }

// GenericConsensusError carries a failure without a dedicated type.
type GenericConsensusError struct {
	Message string `cbor:"message"`
}

func (e *GenericConsensusError) Error() string { return e.Message }

func (e *GenericConsensusError) Code() uint32 { return CodeGeneric }

var consensusErrorTypes = map[uint32]func() ConsensusError{
	CodeJSONSchema:                      func() ConsensusError { return &JSONSchemaError{} },
	CodeSerialization:                   func() ConsensusError { return &SerializationError{} },
	CodeInvalidStateTransitionType:      func() ConsensusError { return &InvalidStateTransitionTypeError{} },
	CodeInvalidDocumentType:             func() ConsensusError { return &InvalidDocumentTypeError{} },
	CodeDataContractNotPresent:          func() ConsensusError { return &DataContractNotPresentError{} },
	CodeDataContractAlreadyPresent:      func() ConsensusError { return &DataContractAlreadyPresentError{} },
	CodeInvalidIdentityPublicKeyData:    func() ConsensusError { return &InvalidIdentityPublicKeyDataError{} },
	CodeDuplicatedIdentityPublicKeyID:   func() ConsensusError { return &DuplicatedIdentityPublicKeyIDError{} },
	CodeMissingPublicKey:                func() ConsensusError { return &MissingPublicKeyError{} },
	CodeInvalidStateTransitionSignature: func() ConsensusError { return &InvalidStateTransitionSignatureError{} },
	CodeIdentityAlreadyExists:           func() ConsensusError { return &IdentityAlreadyExistsError{} },
	CodeDocumentData:                    func() ConsensusError { return &DocumentDataError{} },
	CodeGeneric:                         func() ConsensusError { return &GenericConsensusError{} },
}

// EncodeConsensusError serializes the fields of a consensus error.
// Paired with DecodeConsensusError it reproduces the concrete type.
func EncodeConsensusError(e ConsensusError) ([]byte, error) {
	return Encode(e)
}

// DecodeConsensusError rebuilds a consensus error from its code and the
// output of EncodeConsensusError.
func DecodeConsensusError(code uint32, fields []byte) (ConsensusError, error) {
	newErr, ok := consensusErrorTypes[code]
	if !ok {
		return nil, fmt.Errorf("unknown consensus error code %d", code)
	}
	e := newErr()
	if err := Decode(fields, e); err != nil {
		return nil, fmt.Errorf("could not decode consensus error %d: %w", code, err)
	}
	return e, nil
}

// ValidationResult is the outcome of a validation. It is valid when it
// carries no errors.
type ValidationResult struct {
	errors []ConsensusError
}

// NewValidationResult creates a result holding errs.
func NewValidationResult(errs ...ConsensusError) ValidationResult {
	return ValidationResult{errors: errs}
}

// IsValid reports whether validation passed.
func (r ValidationResult) IsValid() bool { return len(r.errors) == 0 }

// Errors returns the validation errors in the order they were found.
func (r ValidationResult) Errors() []ConsensusError { return r.errors }

// Merge appends the errors of other.
func (r *ValidationResult) Merge(other ValidationResult) {
	r.errors = append(r.errors, other.errors...)
}

// Add appends errs.
func (r *ValidationResult) Add(errs ...ConsensusError) {
	r.errors = append(r.errors, errs...)
}

func joinMessages(prefix string, errs []ConsensusError) string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return prefix + ": " + strings.Join(msgs, "; ")
}

// InvalidDataContractError is returned when a data contract fails
// validation.
type InvalidDataContractError struct {
	Errors []ConsensusError
	Raw    RawDataContract
}

func (e *InvalidDataContractError) Error() string {
	return joinMessages("invalid data contract", e.Errors)
}

// InvalidDocumentError is returned when a document fails validation.
type InvalidDocumentError struct {
	Errors []ConsensusError
	Raw    RawDocument
}

func (e *InvalidDocumentError) Error() string {
	return joinMessages("invalid document", e.Errors)
}

// InvalidIdentityError is returned when an identity fails validation.
type InvalidIdentityError struct {
	Errors []ConsensusError
	Raw    RawIdentity
}

func (e *InvalidIdentityError) Error() string {
	return joinMessages("invalid identity", e.Errors)
}

// InvalidStateTransitionError is returned when a state transition fails
// structural validation. Raw is nil when the bytes could not be decoded.
type InvalidStateTransitionError struct {
	Errors []ConsensusError
	Raw    *RawStateTransition
}

func (e *InvalidStateTransitionError) Error() string {
	return joinMessages("invalid state transition", e.Errors)
}
