package storage

import (
	"errors"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/dgraph-io/badger/v2"

	"github.com/blockberries/drive/dpp"
)

const (
	prefixIdentity = "identity/"
	keyChainTip    = "chain/tip"
)

func makeIdentityKey(id string) []byte {
	return []byte(prefixIdentity + id)
}

type codec struct {
	marshal   func(v any) ([]byte, error)
	unmarshal func(data []byte, v any) error
}

// Entities use canonical CBOR, node records use cramberry.
var (
	entityCodec = codec{marshal: dpp.Encode, unmarshal: dpp.Decode}
	recordCodec = codec{
		marshal:   func(v any) ([]byte, error) { return cramberry.Marshal(v) },
		unmarshal: func(data []byte, v any) error { return cramberry.Unmarshal(data, v) },
	}
)

// upsert encodes entity and stores it under key, replacing any
// previous value.
func upsert(c codec, key []byte, entity any) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		val, err := c.marshal(entity)
		if err != nil {
			return fmt.Errorf("could not encode entity: %w", err)
		}
		if err := tx.Set(key, val); err != nil {
			return fmt.Errorf("could not store data: %w", err)
		}
		return nil
	}
}

// retrieve decodes the value under key into entity, which must be a
// pointer. A missing key yields ErrNotFound.
func retrieve(c codec, key []byte, entity any) func(*badger.Txn) error {
	return func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("could not load data: %w", err)
		}

		err = item.Value(func(val []byte) error {
			return c.unmarshal(val, entity)
		})
		if err != nil {
			return fmt.Errorf("could not decode entity: %w", err)
		}
		return nil
	}
}
