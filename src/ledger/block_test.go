package ledger

import (
	"strings"
	"testing"

	"github.com/mosaicnetworks/forkchain/src/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransactions() []*Transaction {
	return []*Transaction{
		NewTransaction("0", "1", 10, 1700000001),
		NewTransaction("1", "2", 2.5, 1700000002),
	}
}

func TestGenesisIsFixed(t *testing.T) {
	g1 := GenesisBlock()
	g2 := GenesisBlock()

	assert.Equal(t, g1.Hash, g2.Hash)
	assert.Equal(t, GenesisHash(), g1.Hash)
	assert.Equal(t, 0, g1.Height)
	assert.Equal(t, crypto.ZeroHash, g1.PrevHash)
	assert.Empty(t, g1.Transactions)
	assert.True(t, g1.IsGenesis())
	assert.True(t, g1.VerifyHash())
}

func TestBlockHashExcludesProposerFields(t *testing.T) {
	b := NewBlock(1, GenesisHash(), testTransactions(), 1700000010, 42)
	h := b.Hash

	b.ProposerID = "3"
	b.ExpectedLeader = "1"
	b.IsBackupProposal = true

	assert.Equal(t, h, b.CalculateHash())
	assert.True(t, b.VerifyHash())
}

func TestBlockHashCoversContent(t *testing.T) {
	base := NewBlock(1, GenesisHash(), testTransactions(), 1700000010, 42)

	mutations := map[string]func(b *Block){
		"height":    func(b *Block) { b.Height = 2 },
		"prev_hash": func(b *Block) { b.PrevHash = crypto.ZeroHash },
		"timestamp": func(b *Block) { b.Timestamp++ },
		"nonce":     func(b *Block) { b.Nonce++ },
		"tx":        func(b *Block) { b.Transactions = b.Transactions[:1] },
	}

	for name, mutate := range mutations {
		b := NewBlock(1, GenesisHash(), testTransactions(), 1700000010, 42)
		mutate(b)
		if b.VerifyHash() {
			t.Errorf("mutating %s should invalidate the stored hash", name)
		}
		if b.CalculateHash() == base.Hash {
			t.Errorf("mutating %s should change the hash", name)
		}
	}
}

func TestBlockMarshalRoundTrip(t *testing.T) {
	b := NewBlock(5, GenesisHash(), testTransactions(), Now(), 123456)
	b.ProposerID = "2"
	b.ExpectedLeader = "2"

	data, err := b.Marshal()
	require.NoError(t, err)

	var decoded Block
	require.NoError(t, decoded.Unmarshal(data))

	assert.Equal(t, b.Hash, decoded.Hash)
	assert.Equal(t, b.Hash, decoded.CalculateHash())
	assert.Equal(t, "2", decoded.ProposerID)
	assert.Len(t, decoded.Transactions, 2)
	assert.Equal(t, b.MerkleRoot(), decoded.MerkleRoot())
}

func TestPreimageIsSorted(t *testing.T) {
	b := NewBlock(1, GenesisHash(), nil, 1700000010, 7)

	s := string(b.Preimage())
	keys := []string{`"height"`, `"nonce"`, `"prev_hash"`, `"timestamp"`, `"transactions"`}
	last := -1
	for _, k := range keys {
		idx := strings.Index(s, k)
		if idx < 0 {
			t.Fatalf("preimage %s is missing key %s", s, k)
		}
		if idx < last {
			t.Fatalf("key %s is out of order in %s", k, s)
		}
		last = idx
	}
	assert.Equal(t, -1, strings.Index(s, "proposer_id"))
}

func TestBlockKnownAnswer(t *testing.T) {
	genesis := GenesisBlock()
	assert.Equal(t, "98af227901dcd422a57207e0af5eed554d079800e7cc0db3d38dca4a25e71603", genesis.Hash)

	signed := NewTransaction("1", "2", 2.5, 1700000002)
	signed.Sign("1")
	txs := []*Transaction{NewTransaction("0", "1", 10, 1700000001.5), signed}
	b := NewBlock(1, genesis.Hash, txs, 1700000010, 42)

	expected := `{"height": 1, "nonce": 42, ` +
		`"prev_hash": "98af227901dcd422a57207e0af5eed554d079800e7cc0db3d38dca4a25e71603", ` +
		`"timestamp": 1700000010.0, "transactions": [` +
		`{"amount": 10, "hash": "b703c478c7720342ad2de688e75ea1248f72029778879ae969212a1f269ffbc7", ` +
		`"receiver": "1", "sender": "0", "signature": null, "timestamp": 1700000001.5}, ` +
		`{"amount": 2.5, "hash": "c5159aad8d82bfa71f8828bbec198ef6ac0c61a332fa682cc25a4bce32067ddc", ` +
		`"receiver": "2", "sender": "1", ` +
		`"signature": "da3fb789ac0eec3d5ad102f3c3874bd878183a312b555949501414a80c677691", ` +
		`"timestamp": 1700000002.0}]}`

	assert.Equal(t, expected, string(b.Preimage()))
	assert.Equal(t, "56624c744f414d8fe01c6bcea3a7aaa42c710cfa7e17f8382c19550d29e32368", b.Hash)
}
