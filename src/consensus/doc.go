// Package consensus implements the two block production rules of forkchain.
//
// An Algorithm decides who may propose a block at a given height, produces a
// block that satisfies its proof requirement, validates blocks received from
// other nodes, and picks the winning chain among competing branches. The set of
// algorithms is closed: ProofOfWork and Hybrid are the only implementations,
// and Kind identifies which one is active.
//
// ProofOfWork is an open competition: any node may mine any height, the hash
// must start with Difficulty zero hex characters, and the longest valid chain
// wins.
//
// Hybrid elects a primary leader per height with a stake-weighted draw that
// every node computes identically from a shared seed. If the primary stays
// silent, backup leaders are allowed to propose one after the other as local
// timeouts expire. Blocks carry a light proof of work, and the chain carrying
// the most proposer stake wins.
package consensus
