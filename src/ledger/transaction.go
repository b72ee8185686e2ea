package ledger

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mosaicnetworks/forkchain/src/crypto"
)

// Transaction moves Amount from Sender to Receiver. Its Hash is fixed at
// construction; nothing in this module mutates a Transaction afterwards except
// Sign, which only sets the Signature.
type Transaction struct {
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Amount    float64 `json:"amount"`
	Timestamp float64 `json:"timestamp"`
	Signature string  `json:"signature,omitempty"`
	Hash      string  `json:"hash"`
}

// NewTransaction creates a Transaction and computes its identity hash.
func NewTransaction(sender, receiver string, amount float64, timestamp float64) *Transaction {
	tx := &Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: timestamp,
	}
	tx.Hash = tx.CalculateHash()
	return tx
}

// CalculateHash recomputes the identity hash from the transaction fields.
func (tx *Transaction) CalculateHash() string {
	return canonicalHash(tx.preimage())
}

// Preimage returns the canonical bytes that the transaction hash commits to.
func (tx *Transaction) Preimage() []byte {
	return canonicalEncode(tx.preimage())
}

func (tx *Transaction) preimage() txPreimage {
	return txPreimage{
		Amount:    tx.Amount,
		Receiver:  tx.Receiver,
		Sender:    tx.Sender,
		Timestamp: tx.Timestamp,
	}
}

// VerifyHash reports whether the stored hash matches the fields.
func (tx *Transaction) VerifyHash() bool {
	return tx.Hash == tx.CalculateHash()
}

// Sign sets the demonstration signature over the transaction hash.
func (tx *Transaction) Sign(key string) {
	tx.Signature = crypto.SimpleSign(tx.Hash, key)
}

// VerifySignature checks the demonstration signature against key.
func (tx *Transaction) VerifySignature(key string) bool {
	if tx.Signature == "" {
		return false
	}
	return crypto.SimpleVerify(tx.Hash, tx.Signature, key)
}

func (tx *Transaction) wire() txWire {
	w := txWire{
		Amount:    tx.Amount,
		Hash:      tx.Hash,
		Receiver:  tx.Receiver,
		Sender:    tx.Sender,
		Timestamp: tx.Timestamp,
	}
	if tx.Signature != "" {
		sig := tx.Signature
		w.Signature = &sig
	}
	return w
}

// Marshal returns the JSON wire encoding of the Transaction.
func (tx *Transaction) Marshal() ([]byte, error) {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	if err := enc.Encode(tx); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal decodes a JSON wire encoded Transaction. The stored hash is taken
// as-is; callers verify it.
func (tx *Transaction) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	dec := json.NewDecoder(b)
	return dec.Decode(tx)
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("Tx(%s -> %s: %v)", tx.Sender, tx.Receiver, tx.Amount)
}

// TransactionHashes returns the set of hashes of txs.
func TransactionHashes(txs []*Transaction) map[string]struct{} {
	res := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		res[tx.Hash] = struct{}{}
	}
	return res
}
