package storage

import (
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v2"

	"github.com/blockberries/drive/ratelimit"
)

const prefixQuota = "quota/"

func makeQuotaKey(userID string) []byte {
	return []byte(prefixQuota + userID)
}

// InsertQuotas stores the quota records of submitters, replacing previous
// ones. Records are written in submitter order.
func InsertQuotas(records map[string]ratelimit.Record) func(*badger.Txn) error {
	return func(txn *badger.Txn) error {
		userIDs := make([]string, 0, len(records))
		for userID := range records {
			userIDs = append(userIDs, userID)
		}
		sort.Strings(userIDs)

		for _, userID := range userIDs {
			rec := records[userID]
			if err := upsert(recordCodec, makeQuotaKey(userID), &rec)(txn); err != nil {
				return fmt.Errorf("could not store quota of %s: %w", userID, err)
			}
		}
		return nil
	}
}

// RetrieveQuotas loads every committed quota record keyed by submitter.
func RetrieveQuotas(db *badger.DB) (map[string]ratelimit.Record, error) {
	prefix := []byte(prefixQuota)
	records := make(map[string]ratelimit.Record)

	err := db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			userID := string(item.Key()[len(prefix):])

			var rec ratelimit.Record
			err := item.Value(func(val []byte) error {
				return recordCodec.unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("could not decode quota of %s: %w", userID, err)
			}
			records[userID] = rec
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("could not retrieve quotas: %w", err)
	}
	return records, nil
}
