package consensus

import (
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/sirupsen/logrus"
)

// Hybrid elects one primary leader per height with a stake-weighted draw and
// lets backup leaders step in, one after the other, when the primary is
// silent. Blocks carry a light proof of work.
//
// Node identifiers are the decimal indices into the stake table.
type Hybrid struct {
	stakes     []int
	totalStake int

	lightDifficulty    int
	lightAttempts      int64
	leaderTimeout      time.Duration
	maxBackupLeaders   int
	backupMultiplier   float64
	seed               int64
	strictBackupTiming bool
	blockTime          time.Duration
	cacheWindow        int

	// mu guards the leader cache and the first-seen times.
	mu        sync.Mutex
	leaders   *leaderCache
	firstSeen map[int]time.Time

	now    func() time.Time
	logger *logrus.Entry
}

// NewHybrid ...
func NewHybrid(conf Config, logger *logrus.Entry) (*Hybrid, error) {
	if len(conf.Stakes) == 0 {
		return nil, NewConfigurationError("hybrid consensus needs a stake table")
	}

	total := 0
	for i, s := range conf.Stakes {
		if s < 0 {
			return nil, NewConfigurationError("stake of node %d is negative: %d", i, s)
		}
		total += s
	}
	if total <= 0 {
		return nil, NewConfigurationError("total stake must be positive")
	}
	if conf.LightDifficulty < 0 {
		return nil, NewConfigurationError("light difficulty must not be negative, got %d", conf.LightDifficulty)
	}
	if conf.LightAttempts <= 0 {
		conf.LightAttempts = DefaultLightAttempts
	}
	if conf.LeaderTimeout <= 0 {
		return nil, NewConfigurationError("leader timeout must be positive, got %v", conf.LeaderTimeout)
	}
	if conf.MaxBackupLeaders < 0 {
		return nil, NewConfigurationError("max backup leaders must not be negative, got %d", conf.MaxBackupLeaders)
	}
	if conf.BackupTimeoutMultiplier < 0 {
		return nil, NewConfigurationError("backup timeout multiplier must not be negative")
	}
	if conf.BlockTime <= 0 {
		conf.BlockTime = DefaultBlockTime
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}

	stakes := make([]int, len(conf.Stakes))
	copy(stakes, conf.Stakes)

	return &Hybrid{
		stakes:             stakes,
		totalStake:         total,
		lightDifficulty:    conf.LightDifficulty,
		lightAttempts:      conf.LightAttempts,
		leaderTimeout:      conf.LeaderTimeout,
		maxBackupLeaders:   conf.MaxBackupLeaders,
		backupMultiplier:   conf.BackupTimeoutMultiplier,
		seed:               conf.Seed,
		strictBackupTiming: conf.StrictBackupTiming,
		blockTime:          conf.BlockTime,
		cacheWindow:        conf.LeaderCacheWindow,
		leaders:            newLeaderCache(conf.LeaderCacheWindow),
		firstSeen:          make(map[int]time.Time),
		now:                time.Now,
		logger:             logger,
	}, nil
}

func (h *Hybrid) sealed() {}

// Kind implements Algorithm
func (h *Hybrid) Kind() Kind {
	return HybridKind
}

// BlockTimeMs implements Algorithm
func (h *Hybrid) BlockTimeMs() int {
	return int(h.blockTime / time.Millisecond)
}

// Stakes returns a copy of the stake table.
func (h *Hybrid) Stakes() []int {
	res := make([]int, len(h.stakes))
	copy(res, h.stakes)
	return res
}

// LeaderForDraw maps a draw in [1, totalStake] to the node with the smallest
// cumulative stake greater than or equal to it.
func (h *Hybrid) LeaderForDraw(draw int64) int {
	var cumulative int64
	for i, s := range h.stakes {
		cumulative += int64(s)
		if cumulative >= draw {
			return i
		}
	}
	return len(h.stakes) - 1
}

// draw seeds a private generator with seed+height. Nothing else is drawn from
// it, so the result only depends on the height and the shared seed.
func (h *Hybrid) draw(height int) int64 {
	rng := rand.New(rand.NewSource(h.seed + int64(height)))
	return rng.Int63n(int64(h.totalStake)) + 1
}

// SelectLeader returns the primary leader for height. Every node configured
// with the same seed and stakes gets the same answer.
func (h *Hybrid) SelectLeader(height int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.selectLeader(height)
}

func (h *Hybrid) selectLeader(height int) int {
	if leader, ok := h.leaders.get(height); ok {
		return leader
	}
	leader := h.LeaderForDraw(h.draw(height))
	h.leaders.put(height, leader)
	return leader
}

// BackupLeaders returns the ordered backups for height: every node but the
// primary, shuffled with a seed derived from (height, primary) and then
// stably sorted by descending stake, truncated to the configured maximum.
func (h *Hybrid) BackupLeaders(height int, primary int) []int {
	others := make([]int, 0, len(h.stakes))
	for i := range h.stakes {
		if i != primary {
			others = append(others, i)
		}
	}

	rng := rand.New(rand.NewSource(backupSeed(height, primary)))
	rng.Shuffle(len(others), func(i, j int) {
		others[i], others[j] = others[j], others[i]
	})

	sort.SliceStable(others, func(i, j int) bool {
		return h.stakes[others[i]] > h.stakes[others[j]]
	})

	if len(others) > h.maxBackupLeaders {
		others = others[:h.maxBackupLeaders]
	}
	return others
}

func backupSeed(height int, primary int) int64 {
	return int64(height)*1000003 + int64(primary)
}

// backupWindow is the elapsed time after which the i-th backup (0-based) may
// propose.
func (h *Hybrid) backupWindow(i int) time.Duration {
	step := time.Duration(float64(h.leaderTimeout) * h.backupMultiplier)
	return h.leaderTimeout + time.Duration(i)*step
}

// observe records the first time this node considered height and returns how
// long ago that was.
func (h *Hybrid) observe(height int) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	first, ok := h.firstSeen[height]
	if !ok {
		first = now
		h.firstSeen[height] = now
		h.evictFirstSeen(height)
	}
	return now.Sub(first)
}

func (h *Hybrid) evictFirstSeen(latest int) {
	window := h.cacheWindow
	if window <= 0 {
		window = DefaultLeaderCacheWindow
	}
	if len(h.firstSeen) <= window {
		return
	}
	for height := range h.firstSeen {
		if height < latest-window {
			delete(h.firstSeen, height)
		}
	}
}

func (h *Hybrid) elapsedSinceFirstSeen(height int) (time.Duration, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	first, ok := h.firstSeen[height]
	if !ok {
		return 0, false
	}
	return h.now().Sub(first), true
}

// nodeIndex parses a proposer identifier into a stake table index.
func (h *Hybrid) nodeIndex(id string) (int, bool) {
	idx, err := strconv.Atoi(id)
	if err != nil || idx < 0 || idx >= len(h.stakes) {
		return 0, false
	}
	return idx, true
}

// CanPropose implements Algorithm. The primary may propose as soon as the
// height is first observed; the i-th backup once the elapsed time exceeds its
// window.
func (h *Hybrid) CanPropose(proposerID string, height int) bool {
	idx, ok := h.nodeIndex(proposerID)
	if !ok {
		return false
	}

	elapsed := h.observe(height)
	primary := h.SelectLeader(height)
	if idx == primary {
		return true
	}

	for i, b := range h.BackupLeaders(height, primary) {
		if b == idx {
			return elapsed > h.backupWindow(i)
		}
	}
	return false
}

// ActiveLeader returns the node expected to propose at height right now: the
// primary until the leader timeout, then the latest backup whose window has
// opened.
func (h *Hybrid) ActiveLeader(height int) int {
	elapsed := h.observe(height)
	primary := h.SelectLeader(height)

	active := primary
	for i, b := range h.BackupLeaders(height, primary) {
		if elapsed > h.backupWindow(i) {
			active = b
		}
	}
	return active
}

// CreateBlock implements Algorithm. It stamps the leadership fields and runs
// the light proof of work. If no conforming nonce is found within the attempt
// budget the block falls back to nonce 0 and is returned with a
// ProofIncompleteError.
func (h *Hybrid) CreateBlock(height int, prevHash string, txs []*ledger.Transaction, proposerID string) (*ledger.Block, error) {
	primary := h.SelectLeader(height)

	block := ledger.NewBlock(height, prevHash, txs, ledger.Now(), 0)
	block.ProposerID = proposerID
	block.ExpectedLeader = strconv.Itoa(h.ActiveLeader(height))
	block.IsBackupProposal = proposerID != strconv.Itoa(primary)

	for nonce := int64(0); nonce < h.lightAttempts; nonce++ {
		block.Nonce = nonce
		block.Hash = block.CalculateHash()
		if block.MeetsDifficulty(h.lightDifficulty) {
			h.logger.WithFields(logrus.Fields{
				"height": height,
				"nonce":  nonce,
				"backup": block.IsBackupProposal,
			}).Debug("Found light proof of work")
			return block, nil
		}
	}

	block.Nonce = 0
	block.Hash = block.CalculateHash()

	h.logger.WithFields(logrus.Fields{
		"height":   height,
		"attempts": h.lightAttempts,
	}).Warn("Light proof of work exhausted")

	return block, ProofIncompleteError{
		Height:     height,
		Difficulty: h.lightDifficulty,
		Attempts:   h.lightAttempts,
	}
}

// validLeader checks that the proposer was the primary or one of the backups
// for the block height. Unattributed blocks are accepted. With strict backup
// timing, a backup is only accepted once its window has opened locally.
func (h *Hybrid) validLeader(block *ledger.Block, proposerID string) bool {
	if proposerID == "" {
		return true
	}

	idx, ok := h.nodeIndex(proposerID)
	if !ok {
		return false
	}

	primary := h.SelectLeader(block.Height)
	if idx == primary {
		return true
	}

	for i, b := range h.BackupLeaders(block.Height, primary) {
		if b != idx {
			continue
		}
		if !h.strictBackupTiming {
			return true
		}
		elapsed, seen := h.elapsedSinceFirstSeen(block.Height)
		return !seen || elapsed > h.backupWindow(i)
	}

	return false
}

// ValidateLightProof reports whether the stored hash is the true hash of the
// block and meets the light difficulty.
func (h *Hybrid) ValidateLightProof(block *ledger.Block) bool {
	return block.VerifyHash() && block.MeetsDifficulty(h.lightDifficulty)
}

// ValidateBlock implements Algorithm. The proposer recorded in the block takes
// precedence over proposerID.
func (h *Hybrid) ValidateBlock(block *ledger.Block, proposerID string) bool {
	if block.ProposerID != "" {
		proposerID = block.ProposerID
	}
	if !h.validLeader(block, proposerID) {
		return false
	}
	return h.ValidateLightProof(block)
}

// ChainWeight sums the proposer stakes of a chain. Unattributed blocks count
// for 1, unknown proposers for 0.
func (h *Hybrid) ChainWeight(chain []*ledger.Block) int {
	weight := 0
	for _, b := range chain {
		if b.ProposerID == "" {
			weight++
			continue
		}
		if idx, ok := h.nodeIndex(b.ProposerID); ok {
			weight += h.stakes[idx]
		}
	}
	return weight
}

func (h *Hybrid) validChain(chain []*ledger.Block) bool {
	if !linked(chain) {
		return false
	}
	for _, b := range chain[1:] {
		if !h.ValidateBlock(b, "") {
			return false
		}
	}
	return true
}

// SelectBestChain implements Algorithm. The chain with the highest stake
// weight wins, then the longest, then the lexicographically greatest tip hash.
func (h *Hybrid) SelectBestChain(chains [][]*ledger.Block) ([]*ledger.Block, bool) {
	var best []*ledger.Block
	bestWeight := 0
	found := false

	for _, chain := range chains {
		if !h.validChain(chain) {
			continue
		}
		w := h.ChainWeight(chain)
		if !found ||
			w > bestWeight ||
			(w == bestWeight && len(chain) > len(best)) ||
			(w == bestWeight && len(chain) == len(best) && tipHash(chain) > tipHash(best)) {
			best, bestWeight = chain, w
			found = true
		}
	}

	return best, found
}

// CachedLeaders returns the number of heights in the leader cache.
func (h *Hybrid) CachedLeaders() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.leaders.len()
}
