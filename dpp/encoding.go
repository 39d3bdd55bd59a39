package dpp

import (
	"crypto/sha256"
	"reflect"

	"github.com/btcsuite/btcutil/base58"
	"github.com/fxamacker/cbor/v2"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: 32,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode serializes v with canonical CBOR. Equal values always produce
// equal bytes.
func Encode(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Decode deserializes CBOR data into v. Untyped maps decode with string keys.
func Decode(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Hash returns the double SHA-256 of data.
func Hash(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	return second[:]
}

// GenerateID derives an entity identifier from its parts.
func GenerateID(parts ...[]byte) string {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, p...)
	}
	return base58.Encode(Hash(buf))
}

// IsValidID reports whether id encodes a 32-byte identifier.
func IsValidID(id string) bool {
	return id != "" && len(base58.Decode(id)) == 32
}
