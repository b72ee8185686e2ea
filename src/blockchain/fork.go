package blockchain

import (
	"sort"

	"github.com/mosaicnetworks/forkchain/src/common"
	"github.com/mosaicnetworks/forkchain/src/ledger"
	"github.com/sirupsen/logrus"
)

// enumerateChains lists every maximal chain reachable from genesis through
// connected blocks. The walk is an iterative depth-first search with a visited
// set; it fails closed when it meets a cycle, a dangling index entry, more
// than maxBranches leaves or a chain longer than maxDepth.
func (bc *Blockchain) enumerateChains() ([][]*ledger.Block, error) {
	type frame struct {
		hash  string
		depth int
	}

	genesis := bc.mainChain[0]

	var chains [][]*ledger.Block
	visited := make(map[string]struct{})
	path := make([]*ledger.Block, 0, len(bc.mainChain))
	stack := []frame{{hash: genesis.Hash, depth: 0}}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[f.hash]; ok {
			return nil, MalformedGraphError{Defect: Cycle, Hash: f.hash}
		}
		visited[f.hash] = struct{}{}

		block, ok := bc.allBlocks[f.hash]
		if !ok {
			return nil, MalformedGraphError{Defect: MissingBlock, Hash: f.hash}
		}

		if f.depth >= bc.maxDepth {
			return nil, MalformedGraphError{Defect: TooDeep, Hash: f.hash}
		}
		path = append(path[:f.depth], block)

		kids := bc.connectedChildren(f.hash)
		if len(kids) == 0 {
			if len(chains) >= bc.maxBranches {
				return nil, MalformedGraphError{Defect: TooManyBranches, Hash: f.hash}
			}
			chain := make([]*ledger.Block, len(path))
			copy(chain, path)
			chains = append(chains, chain)
			continue
		}

		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{hash: kids[i], depth: f.depth + 1})
		}
	}

	return chains, nil
}

// connectedChildren returns the sorted hashes of the non-buffered children of
// hash.
func (bc *Blockchain) connectedChildren(hash string) []string {
	var res []string
	for _, h := range bc.children[hash] {
		if !bc.isBuffered(h) {
			res = append(res, h)
		}
	}
	sort.Strings(res)
	return res
}

// resolveForks asks the selector to choose among all maximal chains and
// adopts its choice. Replacements that would revert a final block are
// refused. It reports whether the main chain changed.
func (bc *Blockchain) resolveForks() bool {
	if bc.selector == nil {
		return false
	}

	chains, err := bc.enumerateChains()
	if err != nil {
		bc.logger.WithError(err).Error("Fork enumeration failed, keeping main chain")
		return false
	}

	best, ok := bc.selector.SelectBestChain(chains)
	if !ok {
		bc.logger.WithField("candidates", len(chains)).Debug("No valid candidate chain, keeping main chain")
		return false
	}

	currentTip := bc.tip()
	bestTip := best[len(best)-1]
	if bestTip.Hash == currentTip.Hash {
		return false
	}

	final := bc.finalCount()
	if len(best) < final || best[final-1].Hash != bc.mainChain[final-1].Hash {
		bc.refusedReorgs++
		bc.logger.WithFields(logrus.Fields{
			"finality_height": final - 1,
			"candidate_tip":   common.ShortHash(bestTip.Hash),
			"candidate_len":   len(best),
		}).Warn("Refusing chain that reverts final blocks")
		return false
	}

	fork := commonPrefix(bc.mainChain, best)

	bc.setMainChain(best)
	bc.reorgs++

	bc.logger.WithFields(logrus.Fields{
		"fork_height": fork - 1,
		"old_tip":     common.ShortHash(currentTip.Hash),
		"new_tip":     common.ShortHash(bestTip.Hash),
		"length":      len(best),
		"candidates":  len(chains),
	}).Info("Main chain replaced")

	return true
}

// commonPrefix returns the number of leading blocks two chains share.
func commonPrefix(a, b []*ledger.Block) int {
	n := 0
	for n < len(a) && n < len(b) && a[n].Hash == b[n].Hash {
		n++
	}
	return n
}

// ResolveForks runs fork resolution on demand.
func (bc *Blockchain) ResolveForks() bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.resolveForks()
}

// Chains returns every maximal chain currently known.
func (bc *Blockchain) Chains() ([][]*ledger.Block, error) {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.enumerateChains()
}
