package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/crypto"
)

// Block is an ordered batch of transactions linked to its parent by PrevHash.
// ProposerID, ExpectedLeader and IsBackupProposal are always present; blocks
// that nobody claims carry empty values.
type Block struct {
	Height           int            `json:"height"`
	PrevHash         string         `json:"prev_hash"`
	Transactions     []*Transaction `json:"transactions"`
	Timestamp        float64        `json:"timestamp"`
	Nonce            int64          `json:"nonce"`
	ProposerID       string         `json:"proposer_id"`
	ExpectedLeader   string         `json:"expected_leader"`
	IsBackupProposal bool           `json:"is_backup_proposal"`
	Hash             string         `json:"hash"`
}

// NewBlock creates a Block and computes its hash.
func NewBlock(height int, prevHash string, txs []*Transaction, timestamp float64, nonce int64) *Block {
	if txs == nil {
		txs = []*Transaction{}
	}
	b := &Block{
		Height:       height,
		PrevHash:     prevHash,
		Transactions: txs,
		Timestamp:    timestamp,
		Nonce:        nonce,
	}
	b.Hash = b.CalculateHash()
	return b
}

// Preimage returns the canonical bytes that the block hash commits to.
func (b *Block) Preimage() []byte {
	return canonicalEncode(b.preimage())
}

func (b *Block) preimage() blockPreimage {
	txs := make([]txWire, len(b.Transactions))
	for i, tx := range b.Transactions {
		txs[i] = tx.wire()
	}
	return blockPreimage{
		Height:       b.Height,
		Nonce:        b.Nonce,
		PrevHash:     b.PrevHash,
		Timestamp:    b.Timestamp,
		Transactions: txs,
	}
}

// CalculateHash recomputes the block hash from its content fields.
func (b *Block) CalculateHash() string {
	return canonicalHash(b.preimage())
}

// VerifyHash reports whether the stored hash matches the content fields.
func (b *Block) VerifyHash() bool {
	return b.Hash == b.CalculateHash()
}

// MeetsDifficulty reports whether the stored hash has at least difficulty
// leading '0' hex characters.
func (b *Block) MeetsDifficulty(difficulty int) bool {
	return crypto.HasZeroPrefix(b.Hash, difficulty)
}

// IsGenesis ...
func (b *Block) IsGenesis() bool {
	return b.Height == 0 && b.PrevHash == crypto.ZeroHash
}

// MerkleRoot returns the Merkle root of the transaction hashes. It is
// informational and not part of the hash preimage.
func (b *Block) MerkleRoot() string {
	hashes := make([]string, len(b.Transactions))
	for i, tx := range b.Transactions {
		hashes[i] = tx.Hash
	}
	return crypto.MerkleRoot(hashes)
}

// Marshal returns the JSON wire encoding of the Block.
func (b *Block) Marshal() ([]byte, error) {
	bf := bytes.NewBuffer([]byte{})
	enc := json.NewEncoder(bf)
	if err := enc.Encode(b); err != nil {
		return nil, err
	}
	return bf.Bytes(), nil
}

// Unmarshal decodes a JSON wire encoded Block. The stored hash is kept as
// received.
func (b *Block) Unmarshal(data []byte) error {
	bf := bytes.NewBuffer(data)
	dec := json.NewDecoder(bf)
	if err := dec.Decode(b); err != nil {
		return err
	}
	if b.Transactions == nil {
		b.Transactions = []*Transaction{}
	}
	return nil
}

func (b *Block) String() string {
	return fmt.Sprintf("Block(height=%d, hash=%s..., txs=%d)", b.Height, common.ShortHash(b.Hash), len(b.Transactions))
}
