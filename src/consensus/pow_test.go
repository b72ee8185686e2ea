package consensus

import (
	"strings"
	"testing"
	"time"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/ledger"
)

func anyProposer(int) string { return "0" }

func TestPoWCreateBlock(t *testing.T) {
	p := testPoW(t, 2)

	genesis := ledger.GenesisBlock()
	b, err := p.CreateBlock(1, genesis.Hash, []*ledger.Transaction{testTx(5)}, "2")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b.Hash, "00") {
		t.Fatalf("hash %s does not meet difficulty 2", b.Hash)
	}
	if !b.VerifyHash() {
		t.Fatal("stored hash should match content")
	}
	if b.ProposerID != "2" {
		t.Fatalf("expected proposer 2, got %q", b.ProposerID)
	}
	if !p.ValidateBlock(b, "") {
		t.Fatal("mined block should validate")
	}

	b.Nonce++
	if p.ValidateBlock(b, "") {
		t.Fatal("tampered nonce should not validate")
	}
}

func TestPoWDifficultyFour(t *testing.T) {
	if testing.Short() {
		t.Skip("mines a difficulty 4 block")
	}

	p := testPoW(t, 4)
	p.maxMiningTime = 30 * time.Second

	genesis := ledger.GenesisBlock()
	b, err := p.CreateBlock(1, genesis.Hash, []*ledger.Transaction{testTx(1)}, "0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(b.Hash, "0000") {
		t.Fatalf("hash %s does not start with 0000", b.Hash)
	}
	if !p.ValidateProof(b) {
		t.Fatal("proof should validate")
	}
}

func TestPoWMiningTimeout(t *testing.T) {
	p := testPoW(t, 64)
	p.maxMiningTime = 5 * time.Millisecond

	genesis := ledger.GenesisBlock()
	b, err := p.CreateBlock(1, genesis.Hash, []*ledger.Transaction{testTx(1)}, "0")

	pErr, ok := err.(ProofIncompleteError)
	if !ok {
		t.Fatalf("expected ProofIncompleteError, got %v", err)
	}
	if pErr.Attempts < 1 || pErr.Height != 1 {
		t.Fatalf("unexpected error content %+v", pErr)
	}
	if b == nil || !b.VerifyHash() {
		t.Fatal("best attempt should be returned with its true hash")
	}
	if p.ValidateBlock(b, "") {
		t.Fatal("best attempt should not meet difficulty 64")
	}
}

func TestPoWSelectBestChain(t *testing.T) {
	p := testPoW(t, 1)

	genesis := []*ledger.Block{ledger.GenesisBlock()}
	base := extend(t, p, genesis, 2, anyProposer)

	long := extend(t, p, base, 2, anyProposer)
	short := extend(t, p, base, 1, anyProposer)

	best, ok := p.SelectBestChain([][]*ledger.Block{short, long})
	if !ok {
		t.Fatal("expected a winner")
	}
	if tipHash(best) != tipHash(long) {
		t.Fatal("the longest chain should win")
	}

	// Equal length: greatest tip hash wins regardless of order.
	other := extend(t, p, base, 2, func(int) string { return "1" })
	for other[len(other)-1].Hash == long[len(long)-1].Hash {
		other = extend(t, p, base, 2, func(int) string { return "1" })
	}
	want := long
	if tipHash(other) > tipHash(long) {
		want = other
	}

	for _, order := range [][][]*ledger.Block{{long, other}, {other, long}} {
		best, ok := p.SelectBestChain(order)
		if !ok {
			t.Fatal("expected a winner")
		}
		if tipHash(best) != tipHash(want) {
			t.Fatalf("tie should go to the greatest tip hash %s, got %s", tipHash(want), tipHash(best))
		}
	}
}

func TestPoWSelectBestChainInvalid(t *testing.T) {
	p := testPoW(t, 1)

	chain := extend(t, p, []*ledger.Block{ledger.GenesisBlock()}, 3, anyProposer)

	broken := append([]*ledger.Block{}, chain...)
	bad := *broken[2]
	bad.PrevHash = strings.Repeat("f", 64)
	broken[2] = &bad

	if _, ok := p.SelectBestChain([][]*ledger.Block{broken}); ok {
		t.Fatal("a chain with a broken link should not be selected")
	}

	best, ok := p.SelectBestChain([][]*ledger.Block{broken, chain[:2]})
	if !ok || len(best) != 2 {
		t.Fatal("the valid shorter chain should win over the broken one")
	}
}

func TestCalculateDifficulty(t *testing.T) {
	p := testPoW(t, 4)

	spaced := func(interval float64, n int) []*ledger.Block {
		res := make([]*ledger.Block, n)
		for i := 0; i < n; i++ {
			res[i] = ledger.NewBlock(i, "", nil, 1000+float64(i)*interval, 0)
		}
		return res
	}

	cases := []struct {
		name     string
		current  int
		blocks   []*ledger.Block
		expected int
	}{
		{"fast", 4, spaced(0.2, 10), 5},
		{"slow", 4, spaced(3, 10), 3},
		{"on target", 4, spaced(1, 10), 4},
		{"cap", 8, spaced(0.1, 10), 8},
		{"floor", 1, spaced(5, 10), 1},
		{"too few", 4, spaced(0.1, 1), 4},
	}

	for _, c := range cases {
		p.target = c.current
		if got := p.CalculateDifficulty(c.blocks); got != c.expected {
			t.Fatalf("%s: expected %d, got %d", c.name, c.expected, got)
		}
	}

	p.target = 4
	if d := p.Retarget(nil); d != p.difficulty || p.Difficulty() != p.difficulty {
		t.Fatalf("Retarget without retargeting should restore %d, got %d", p.difficulty, d)
	}
}

// spacedChain builds n blocks on chain, interval seconds apart, each meeting
// the difficulty p requires at its height.
func spacedChain(p *ProofOfWork, chain []*ledger.Block, n int, interval float64) []*ledger.Block {
	res := append([]*ledger.Block{}, chain...)
	for i := 0; i < n; i++ {
		tip := res[len(res)-1]
		ts := tip.Timestamp + interval
		if tip.IsGenesis() {
			ts = 1735689700
		}
		b := ledger.NewBlock(tip.Height+1, tip.Hash, []*ledger.Transaction{}, ts, 0)
		for !b.MeetsDifficulty(p.DifficultyAt(res)) {
			b.Nonce++
			b.Hash = b.CalculateHash()
		}
		res = append(res, b)
	}
	return res
}

func TestDifficultyAt(t *testing.T) {
	conf := NewDefaultConfig()
	conf.Difficulty = 1
	conf.AdjustDifficulty = true
	conf.DifficultyWindow = 3
	p, err := NewProofOfWork(conf, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}

	genesis := []*ledger.Block{ledger.GenesisBlock()}
	chain := spacedChain(p, genesis, 6, 0.1)

	// Genesis is never part of a window: heights 1 to 3 form the first.
	for h, expected := range []int{1, 1, 1, 1, 2, 2, 2} {
		if got := p.DifficultyAt(chain[:h]); h > 0 && got != expected {
			t.Fatalf("height %d: expected difficulty %d, got %d", h, expected, got)
		}
	}
	if got := p.DifficultyAt(chain); got != 3 {
		t.Fatalf("height 7: expected difficulty 3, got %d", got)
	}

	if !p.validChain(chain) {
		t.Fatal("blocks mined at the difficulty of their height should validate")
	}

	if d := p.Retarget(chain); d != 3 || p.Difficulty() != 3 {
		t.Fatalf("Retarget should raise the mining difficulty to 3, got %d", p.Difficulty())
	}
	if !p.validChain(chain) {
		t.Fatal("raising the mining difficulty must not invalidate history")
	}
	if _, ok := p.SelectBestChain([][]*ledger.Block{chain}); !ok {
		t.Fatal("history should stay selectable after a retarget")
	}

	// A block that ignores the raised requirement is refused at its height.
	weak := ledger.NewBlock(7, chain[6].Hash, []*ledger.Transaction{}, chain[6].Timestamp+0.1, 0)
	for !weak.MeetsDifficulty(1) || weak.MeetsDifficulty(2) {
		weak.Nonce++
		weak.Hash = weak.CalculateHash()
	}
	if p.ValidateOnBranch(chain, weak) {
		t.Fatal("block below the required difficulty should not validate on its branch")
	}
	if !p.ValidateProof(weak) {
		t.Fatal("context-free check only enforces the floor")
	}
	if p.validChain(append(append([]*ledger.Block{}, chain...), weak)) {
		t.Fatal("chain ending in an underpowered block should be invalid")
	}
}

func TestDifficultyAtWithoutRetarget(t *testing.T) {
	p := testPoW(t, 1)

	chain := spacedChain(p, []*ledger.Block{ledger.GenesisBlock()}, 6, 0.1)
	if got := p.DifficultyAt(chain); got != 1 {
		t.Fatalf("expected the configured difficulty, got %d", got)
	}
	if !p.validChain(chain) {
		t.Fatal("chain should validate")
	}
}

func TestPoWWindowTooShort(t *testing.T) {
	conf := NewDefaultConfig()
	conf.AdjustDifficulty = true
	conf.DifficultyWindow = 1
	if _, err := NewProofOfWork(conf, nil); !IsConfigurationError(err) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}
