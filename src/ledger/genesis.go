package ledger

import (
	"sync"

	"github.com/mosaicnetworks/forkchain/src/crypto"
)

// GenesisTimestamp is fixed so that every node derives the same genesis hash
// without coordination.
const GenesisTimestamp = 1735689600.0

var (
	genesisOnce sync.Once
	genesisHash string
)

// GenesisBlock returns a fresh copy of the genesis block: height 0, zero
// parent hash, no transactions, nonce 0.
func GenesisBlock() *Block {
	return NewBlock(0, crypto.ZeroHash, []*Transaction{}, GenesisTimestamp, 0)
}

// GenesisHash returns the hash shared by all genesis blocks.
func GenesisHash() string {
	genesisOnce.Do(func() {
		genesisHash = GenesisBlock().Hash
	})
	return genesisHash
}
