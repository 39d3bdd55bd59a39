package dpp

import (
	"context"
	"fmt"
	"sort"
)

// PropertySchema constrains a single document property.
type PropertySchema struct {
	Type      string `cbor:"type" validate:"required,oneof=string integer number boolean"`
	MinLength uint32 `cbor:"minLength,omitempty"`
	MaxLength uint32 `cbor:"maxLength,omitempty"`
}

// DocumentSchema defines a document type within a data contract.
type DocumentSchema struct {
	Properties           map[string]PropertySchema `cbor:"properties" validate:"required,min=1,dive,keys,required,endkeys"`
	Required             []string                  `cbor:"required,omitempty" validate:"dive,required"`
	AdditionalProperties bool                      `cbor:"additionalProperties"`
}

// RawDataContract is the plain object form of a data contract.
type RawDataContract struct {
	ProtocolVersion uint32                    `cbor:"protocolVersion"`
	ID              string                    `cbor:"$id" validate:"required,identifier"`
	OwnerID         string                    `cbor:"ownerId" validate:"required,identifier"`
	Documents       map[string]DocumentSchema `cbor:"documents" validate:"required,min=1,dive,keys,documenttype,endkeys"`
}

// DataContract defines the document types an application may store.
type DataContract struct {
	ProtocolVersion uint32
	ID              string
	OwnerID         string
	Documents       map[string]DocumentSchema
}

// ToObject returns the plain object form of the contract.
func (c *DataContract) ToObject() RawDataContract {
	return RawDataContract(*c)
}

// Serialize encodes the contract.
func (c *DataContract) Serialize() ([]byte, error) {
	return Encode(c.ToObject())
}

// IsDocumentDefined reports whether the contract defines documentType.
func (c *DataContract) IsDocumentDefined(documentType string) bool {
	_, ok := c.Documents[documentType]
	return ok
}

// DocumentSchema returns the schema of documentType.
func (c *DataContract) DocumentSchema(documentType string) (DocumentSchema, bool) {
	s, ok := c.Documents[documentType]
	return s, ok
}

// DataContractID derives the identifier of a contract from its owner
// and document definitions.
func DataContractID(ownerID string, documents map[string]DocumentSchema) (string, error) {
	defs, err := Encode(documents)
	if err != nil {
		return "", fmt.Errorf("could not encode document definitions: %w", err)
	}
	return GenerateID([]byte(ownerID), defs), nil
}

type dataContractFacade struct {
	dpp *DPP
}

func (f *dataContractFacade) Create(_ context.Context, ownerID string, documents map[string]DocumentSchema) (*DataContract, error) {
	id, err := DataContractID(ownerID, documents)
	if err != nil {
		return nil, err
	}
	return &DataContract{
		ProtocolVersion: ProtocolVersion,
		ID:              id,
		OwnerID:         ownerID,
		Documents:       documents,
	}, nil
}

func (f *dataContractFacade) CreateFromObject(ctx context.Context, raw RawDataContract) (*DataContract, error) {
	result, err := f.Validate(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !result.IsValid() {
		return nil, &InvalidDataContractError{Errors: result.Errors(), Raw: raw}
	}
	contract := DataContract(raw)
	return &contract, nil
}

func (f *dataContractFacade) CreateFromSerialized(ctx context.Context, data []byte) (*DataContract, error) {
	var raw RawDataContract
	cerr, err := decodeMetered(ctx, data, &raw)
	if err != nil {
		return nil, err
	}
	if cerr != nil {
		return nil, &InvalidDataContractError{Errors: []ConsensusError{cerr}}
	}
	return f.CreateFromObject(ctx, raw)
}

func (f *dataContractFacade) Validate(ctx context.Context, raw RawDataContract) (ValidationResult, error) {
	if err := checkpoint(ctx); err != nil {
		return ValidationResult{}, err
	}
	errs, err := f.dpp.schema.Validate(raw)
	if err != nil {
		return ValidationResult{}, err
	}
	result := NewValidationResult(errs...)

	types := make([]string, 0, len(raw.Documents))
	for t := range raw.Documents {
		types = append(types, t)
	}
	sort.Strings(types)
	meter := MeterFromContext(ctx)
	for _, t := range types {
		schema := raw.Documents[t]
		if err := meter.MeterMemory(MemoryKindSchemaProperty, uint64(len(schema.Properties)+len(schema.Required))); err != nil {
			return ValidationResult{}, err
		}
		for _, name := range schema.Required {
			if _, ok := schema.Properties[name]; !ok {
				result.Add(&JSONSchemaError{
					Keyword:  "required",
					DataPath: fmt.Sprintf(".documents[%s].properties", t),
					Param:    name,
				})
			}
		}
	}
	return result, nil
}

func (f *dataContractFacade) CreateStateTransition(_ context.Context, contract *DataContract) (StateTransition, error) {
	raw := contract.ToObject()
	return &DataContractTransition{raw: RawStateTransition{
		ProtocolVersion: ProtocolVersion,
		Type:            TypeDataContract,
		DataContract:    &raw,
	}}, nil
}
