// Package node implements the reactive part of a forkchain node.
//
// A Node owns one Blockchain, one consensus Algorithm and one Transport. It
// runs two loops that share the blockchain:
//
// The process loop drains the transport's inbound queue with a short poll
// timeout. Block proposals are checked against the consensus rules and handed
// to the blockchain, which extends, buffers or resolves forks. Transactions go
// to the pending pool. Chain requests are answered with main-chain blocks, and
// chain responses are applied in height order.
//
// The mining loop wakes at a fixed interval, asks the consensus algorithm for
// a block on top of the current tip and, when one is produced, commits it
// locally before broadcasting it as a block proposal.
//
// A single mutex around every mine-then-commit step and every inbound
// application keeps the two loops from interleaving partial updates.
// Cancellation is cooperative: Shutdown flips the running state and closes the
// transport; loops notice at their next iteration.
package node
