package app

import (
	"encoding/binary"

	"github.com/blockberries/drive/dpp"
	"github.com/blockberries/drive/types"
)

// genesisAppHash is the app hash before the first block.
func genesisAppHash(chainID string) types.AppHash {
	var h types.AppHash
	copy(h[:], dpp.Hash([]byte(chainID)))
	return h
}

// computeAppHash chains the previous app hash with the height and the
// code and hash of every transaction of the block.
func computeAppHash(prev []byte, height uint64, txs []types.Tx, outcomes []types.TxOutcome) types.AppHash {
	buf := make([]byte, 0, len(prev)+8+len(txs)*36)
	buf = append(buf, prev...)
	buf = binary.BigEndian.AppendUint64(buf, height)
	for i, tx := range txs {
		buf = binary.BigEndian.AppendUint32(buf, outcomes[i].Code)
		buf = append(buf, dpp.Hash(tx)...)
	}

	var h types.AppHash
	copy(h[:], dpp.Hash(buf))
	return h
}
