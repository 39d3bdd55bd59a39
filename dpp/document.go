package dpp

import (
	"context"
	"fmt"
	"math"
	"sort"
	"unicode/utf8"
)

// DocumentAction is the operation a documents transition applies.
type DocumentAction uint8

const (
	DocumentActionCreate  DocumentAction = 1
	DocumentActionReplace DocumentAction = 2
	DocumentActionDelete  DocumentAction = 3
)

// RawDocument is the plain object form of a document.
type RawDocument struct {
	ProtocolVersion uint32         `cbor:"$protocolVersion"`
	ID              string         `cbor:"$id" validate:"required,identifier"`
	Type            string         `cbor:"$type"`
	DataContractID  string         `cbor:"$dataContractId" validate:"required,identifier"`
	OwnerID         string         `cbor:"$ownerId" validate:"required,identifier"`
	Revision        uint32         `cbor:"$revision" validate:"gte=1"`
	Entropy         string         `cbor:"$entropy" validate:"required"`
	Data            map[string]any `cbor:"data,omitempty"`
}

// Document is an instance of a document type defined by a data contract.
type Document struct {
	ProtocolVersion uint32
	ID              string
	Type            string
	DataContractID  string
	OwnerID         string
	Revision        uint32
	Entropy         string
	Data            map[string]any
}

// ToObject returns the plain object form of the document.
func (d *Document) ToObject() RawDocument {
	return RawDocument(*d)
}

// Serialize encodes the document.
func (d *Document) Serialize() ([]byte, error) {
	return Encode(d.ToObject())
}

type documentFacade struct {
	dpp *DPP
}

// Create builds a new document. The entropy, and therefore the id, is
// derived from the owner, the contract, the type and the data.
func (f *documentFacade) Create(ctx context.Context, contract *DataContract, ownerID, documentType string, data map[string]any) (*Document, error) {
	if !contract.IsDocumentDefined(documentType) {
		return nil, &InvalidDocumentError{Errors: []ConsensusError{
			&InvalidDocumentTypeError{DocumentType: documentType, DataContractID: contract.ID},
		}}
	}
	encoded, err := Encode(data)
	if err != nil {
		return nil, fmt.Errorf("could not encode document data: %w", err)
	}
	meter := MeterFromContext(ctx)
	if err := meter.MeterMemory(MemoryKindRawData, uint64(len(encoded))); err != nil {
		return nil, err
	}
	// Normalise to the decoded representation so that a document reads
	// the same after a round trip.
	var normalized map[string]any
	if err := Decode(encoded, &normalized); err != nil {
		return nil, fmt.Errorf("could not normalise document data: %w", err)
	}
	if err := meterValue(meter, normalized); err != nil {
		return nil, err
	}
	entropy := GenerateID([]byte(ownerID), []byte(contract.ID), []byte(documentType), encoded)
	return &Document{
		ProtocolVersion: ProtocolVersion,
		ID:              GenerateID([]byte(contract.ID), []byte(ownerID), []byte(documentType), []byte(entropy)),
		Type:            documentType,
		DataContractID:  contract.ID,
		OwnerID:         ownerID,
		Revision:        1,
		Entropy:         entropy,
		Data:            normalized,
	}, nil
}

func (f *documentFacade) CreateFromObject(ctx context.Context, raw RawDocument) (*Document, error) {
	result, err := f.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !result.IsValid() {
		return nil, &InvalidDocumentError{Errors: result.Errors(), Raw: raw}
	}
	doc := Document(raw)
	return &doc, nil
}

func (f *documentFacade) CreateFromSerialized(ctx context.Context, data []byte) (*Document, error) {
	var raw RawDocument
	cerr, err := decodeMetered(ctx, data, &raw)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, &InvalidDocumentError{Errors: []ConsensusError{cerr}}
	}
	return f.CreateFromObject(ctx, raw)
}

// Validate checks the document structure, then its data against the
// schema of its type in the referenced contract.
func (f *documentFacade) Validate(ctx context.Context, raw RawDocument) (ValidationResult, error) {
	if err := checkpoint(ctx); err != nil {
		return ValidationResult{}, err
	}
	meter := MeterFromContext(ctx)
	if err := meter.MeterMemory(MemoryKindDocument, 1); err != nil {
		return ValidationResult{}, err
	}
	if err := meterValue(meter, raw.Data); err != nil {
		return ValidationResult{}, err
	}
	errs, err := f.dpp.schema.Validate(raw)
	if err != nil {
		return ValidationResult{}, err
	}
	result := NewValidationResult(errs...)
	if raw.Type == "" {
		result.Add(&InvalidDocumentTypeError{DataContractID: raw.DataContractID})
	}
	if !result.IsValid() {
		return result, nil
	}

	contract, err := f.dpp.provider.FetchDataContract(ctx, raw.DataContractID)
	if err != nil {
		return ValidationResult{}, err
	}
	if contract == nil {
		return NewValidationResult(&DataContractNotPresentError{DataContractID: raw.DataContractID}), nil
	}
	schema, ok := contract.DocumentSchema(raw.Type)
	if !ok {
		return NewValidationResult(&InvalidDocumentTypeError{
			DocumentType:   raw.Type,
			DataContractID: raw.DataContractID,
		}), nil
	}
	dataErrs, err := validateDocumentData(ctx, raw.Type, schema, raw.Data)
	if err != nil {
		return ValidationResult{}, err
	}
	return NewValidationResult(dataErrs...), nil
}

func (f *documentFacade) CreateStateTransition(_ context.Context, actions []DocumentAction, documents []*Document) (StateTransition, error) {
	if len(actions) != len(documents) {
		return nil, fmt.Errorf("got %d actions for %d documents", len(actions), len(documents))
	}
	raws := make([]RawDocument, len(documents))
	for i, d := range documents {
		raws[i] = d.ToObject()
	}
	return &DocumentsTransition{raw: RawStateTransition{
		ProtocolVersion: ProtocolVersion,
		Type:            TypeDocuments,
		Actions:         append([]DocumentAction(nil), actions...),
		Documents:       raws,
	}}, nil
}

func validateDocumentData(ctx context.Context, documentType string, schema DocumentSchema, data map[string]any) ([]ConsensusError, error) {
	var errs []ConsensusError
	for _, name := range schema.Required {
		if _, ok := data[name]; !ok {
			errs = append(errs, &DocumentDataError{DocumentType: documentType, Property: name, Reason: "is required"})
		}
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := checkpoint(ctx); err != nil {
			return nil, err
		}
		prop, ok := schema.Properties[name]
		if !ok {
			if !schema.AdditionalProperties {
				errs = append(errs, &DocumentDataError{DocumentType: documentType, Property: name, Reason: "is not allowed"})
			}
			continue
		}
		if reason := checkProperty(prop, data[name]); reason != "" {
			errs = append(errs, &DocumentDataError{DocumentType: documentType, Property: name, Reason: reason})
		}
	}
	if err := MeterFromContext(ctx).MeterMemory(MemoryKindValidationError, uint64(len(errs))); err != nil {
		return nil, err
	}
	return errs, nil
}

func checkProperty(prop PropertySchema, value any) string {
	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return "should be string"
		}
		n := uint32(utf8.RuneCountInString(s))
		if prop.MinLength > 0 && n < prop.MinLength {
			return fmt.Sprintf("should be at least %d characters", prop.MinLength)
		}
		if prop.MaxLength > 0 && n > prop.MaxLength {
			return fmt.Sprintf("should be at most %d characters", prop.MaxLength)
		}
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		case float32:
			if float64(v) != math.Trunc(float64(v)) {
				return "should be integer"
			}
		case float64:
			if v != math.Trunc(v) {
				return "should be integer"
			}
		default:
			return "should be integer"
		}
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		default:
			return "should be number"
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return "should be boolean"
		}
	}
	return ""
}
