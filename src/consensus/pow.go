package consensus

import (
	"sync"
	"time"

	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/sirupsen/logrus"
)

const (
	minDifficulty = 1
	maxDifficulty = 8
)

// ProofOfWork is competitive mining: any node may propose at any height, and
// the block hash must start with difficulty zero hex characters.
//
// With retargeting on, the difficulty a block needs is a function of its
// ancestors only, so every node agrees on it and old blocks stay valid after
// a change.
type ProofOfWork struct {
	difficulty int
	adjust     bool
	window     int

	targetLock sync.RWMutex
	target     int

	maxMiningTime time.Duration
	blockTime     time.Duration

	now    func() time.Time
	logger *logrus.Entry
}

// NewProofOfWork ...
func NewProofOfWork(conf Config, logger *logrus.Entry) (*ProofOfWork, error) {
	if conf.Difficulty < 0 {
		return nil, NewConfigurationError("difficulty must not be negative, got %d", conf.Difficulty)
	}
	if conf.MaxMiningTime <= 0 {
		return nil, NewConfigurationError("max mining time must be positive, got %v", conf.MaxMiningTime)
	}
	if conf.BlockTime <= 0 {
		conf.BlockTime = DefaultBlockTime
	}
	if conf.DifficultyWindow <= 0 {
		conf.DifficultyWindow = DefaultDifficultyWindow
	}
	if conf.AdjustDifficulty && conf.DifficultyWindow < 2 {
		return nil, NewConfigurationError("difficulty window must span at least 2 blocks, got %d", conf.DifficultyWindow)
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	return &ProofOfWork{
		difficulty:    conf.Difficulty,
		adjust:        conf.AdjustDifficulty,
		window:        conf.DifficultyWindow,
		target:        conf.Difficulty,
		maxMiningTime: conf.MaxMiningTime,
		blockTime:     conf.BlockTime,
		now:           time.Now,
		logger:        logger,
	}, nil
}

func (p *ProofOfWork) sealed() {}

// Kind implements Algorithm
func (p *ProofOfWork) Kind() Kind {
	return ProofOfWorkKind
}

// BlockTimeMs implements Algorithm
func (p *ProofOfWork) BlockTimeMs() int {
	return int(p.blockTime / time.Millisecond)
}

// Difficulty returns the number of leading zeros CreateBlock mines for. It
// follows the last Retarget.
func (p *ProofOfWork) Difficulty() int {
	p.targetLock.RLock()
	defer p.targetLock.RUnlock()
	return p.target
}

// CanPropose implements Algorithm. Mining is open to everyone.
func (p *ProofOfWork) CanPropose(proposerID string, height int) bool {
	return true
}

// CreateBlock searches nonces from 0 upward until the hash meets the
// difficulty or the mining time budget is spent. On timeout the block carries
// the attempted nonce whose hash came closest to the target, and a
// ProofIncompleteError is returned with it.
func (p *ProofOfWork) CreateBlock(height int, prevHash string, txs []*ledger.Transaction, proposerID string) (*ledger.Block, error) {
	difficulty := p.Difficulty()

	block := ledger.NewBlock(height, prevHash, txs, ledger.Now(), 0)
	block.ProposerID = proposerID

	start := p.now()
	bestNonce, bestHash := int64(0), block.Hash

	var nonce int64
	for ; ; nonce++ {
		block.Nonce = nonce
		block.Hash = block.CalculateHash()

		if block.MeetsDifficulty(difficulty) {
			p.logger.WithFields(logrus.Fields{
				"height": height,
				"nonce":  nonce,
				"took":   p.now().Sub(start),
			}).Debug("Found proof of work")
			return block, nil
		}

		if block.Hash < bestHash {
			bestNonce, bestHash = nonce, block.Hash
		}

		if p.now().Sub(start) >= p.maxMiningTime {
			break
		}
	}

	block.Nonce = bestNonce
	block.Hash = bestHash

	p.logger.WithFields(logrus.Fields{
		"height":   height,
		"attempts": nonce + 1,
	}).Warn("Mining time exhausted")

	return block, ProofIncompleteError{
		Height:     height,
		Difficulty: difficulty,
		Attempts:   nonce + 1,
	}
}

// ValidateProof reports whether the stored hash is the true hash of the block
// and meets the lowest difficulty any height may require. The exact
// requirement depends on the ancestors; see ValidateOnBranch.
func (p *ProofOfWork) ValidateProof(block *ledger.Block) bool {
	return block.VerifyHash() && block.MeetsDifficulty(p.floor())
}

// ValidateOnBranch reports whether block carries a valid proof for the
// difficulty required on top of branch, which runs from genesis to the
// block's parent.
func (p *ProofOfWork) ValidateOnBranch(branch []*ledger.Block, block *ledger.Block) bool {
	return block.VerifyHash() && block.MeetsDifficulty(p.DifficultyAt(branch))
}

// ValidateBlock implements Algorithm. Only the proof is checked.
func (p *ProofOfWork) ValidateBlock(block *ledger.Block, proposerID string) bool {
	return p.ValidateProof(block)
}

func (p *ProofOfWork) floor() int {
	if p.adjust && p.difficulty > minDifficulty {
		return minDifficulty
	}
	return p.difficulty
}

// validChain checks every block against the difficulty of its own height.
func (p *ProofOfWork) validChain(chain []*ledger.Block) bool {
	if !linked(chain) {
		return false
	}
	difficulty := p.difficulty
	for i := 1; i < len(chain); i++ {
		if p.adjust && i > 1 && (i-1)%p.window == 0 {
			difficulty = p.calculateDifficulty(difficulty, chain[i-p.window:i])
		}
		if !chain[i].VerifyHash() || !chain[i].MeetsDifficulty(difficulty) {
			return false
		}
	}
	return true
}

// SelectBestChain implements Algorithm. The longest valid chain wins; equal
// lengths are broken by the lexicographically greatest tip hash so that every
// node converges on the same branch.
func (p *ProofOfWork) SelectBestChain(chains [][]*ledger.Block) ([]*ledger.Block, bool) {
	var best []*ledger.Block
	found := false

	for _, chain := range chains {
		if !p.validChain(chain) {
			continue
		}
		if !found ||
			len(chain) > len(best) ||
			(len(chain) == len(best) && tipHash(chain) > tipHash(best)) {
			best = chain
			found = true
		}
	}

	return best, found
}

// DifficultyAt returns the difficulty required of the block that extends
// branch, which runs from genesis to the parent. Without retargeting it is the
// configured difficulty. Otherwise the chain is cut into windows of
// consecutive blocks, genesis excluded, and each completed window sets the
// difficulty of the next one through CalculateDifficulty.
func (p *ProofOfWork) DifficultyAt(branch []*ledger.Block) int {
	difficulty := p.difficulty
	if !p.adjust || len(branch) < 2 {
		return difficulty
	}
	blocks := branch[1:]
	for end := p.window; end <= len(blocks); end += p.window {
		difficulty = p.calculateDifficulty(difficulty, blocks[end-p.window:end])
	}
	return difficulty
}

// Retarget sets the mining difficulty to the one required on top of branch
// and returns it.
func (p *ProofOfWork) Retarget(branch []*ledger.Block) int {
	next := p.DifficultyAt(branch)

	p.targetLock.Lock()
	changed := next != p.target
	p.target = next
	p.targetLock.Unlock()

	if changed {
		p.logger.WithFields(logrus.Fields{
			"height":     len(branch),
			"difficulty": next,
		}).Info("Difficulty adjusted")
	}

	return next
}

// CalculateDifficulty derives the difficulty the recent blocks call for,
// starting from the current mining difficulty.
func (p *ProofOfWork) CalculateDifficulty(recent []*ledger.Block) int {
	return p.calculateDifficulty(p.Difficulty(), recent)
}

// calculateDifficulty moves current by one step. If blocks came faster than
// half the target spacing, difficulty goes up by one; slower than twice the
// target, down by one. The result stays within [1, 8].
func (p *ProofOfWork) calculateDifficulty(current int, recent []*ledger.Block) int {
	if len(recent) < 2 {
		return current
	}

	span := recent[len(recent)-1].Timestamp - recent[0].Timestamp
	meanMs := span / float64(len(recent)-1) * 1000
	target := float64(p.BlockTimeMs())

	next := current
	switch {
	case meanMs < target*0.5:
		next = current + 1
	case meanMs > target*2:
		next = current - 1
	}

	if next > maxDifficulty {
		next = maxDifficulty
	}
	if next < minDifficulty {
		next = minDifficulty
	}

	return next
}
