package dpp

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var documentTypePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]{0,62}$`)

// SchemaValidator checks raw entities against their structural schema.
// It is safe for concurrent use and meant to be built once and shared.
type SchemaValidator struct {
	validate *validator.Validate
}

// NewSchemaValidator compiles the entity schemas.
func NewSchemaValidator() *SchemaValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("cbor"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for empty tags or nil functions.
	_ = v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
		return IsValidID(fl.Field().String())
	})
	_ = v.RegisterValidation("documenttype", func(fl validator.FieldLevel) bool {
		return documentTypePattern.MatchString(fl.Field().String())
	})
	return &SchemaValidator{validate: v}
}

// Validate checks a raw entity and returns its schema errors in field
// order. Non-schema failures are returned as the error.
func (s *SchemaValidator) Validate(raw any) ([]ConsensusError, error) {
	err := s.validate.Struct(raw)
	if err == nil {
		return nil, nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return nil, err
	}
	result := make([]ConsensusError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		result = append(result, &JSONSchemaError{
			Keyword:  fe.Tag(),
			DataPath: dataPath(fe.Namespace()),
			Param:    fe.Param(),
		})
	}
	return result, nil
}

// dataPath drops the root struct name from a validator namespace.
func dataPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i:]
	}
	return ""
}

var defaultSchemaValidator = NewSchemaValidator()
