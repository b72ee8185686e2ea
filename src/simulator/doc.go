// Package simulator runs a whole forkchain network inside one process.
//
// Every node gets its own Blockchain, consensus Algorithm and in-memory
// transport; nodes share nothing but the message channels between
// transports. The simulator drives a scenario against them, samples the
// cross-node invariants while they run and produces a Report at the end.
package simulator
