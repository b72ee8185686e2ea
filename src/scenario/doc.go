// Package scenario drives adverse network conditions against running nodes.
//
// Two scenarios are supported. Delays attaches a seeded random delivery delay
// to every in-memory transport. Partition splits the nodes into groups after
// a fixed wait and heals the split after a fixed duration; the timers touch
// only the transports' allowed-peer sets. A transaction generator submits
// random payments on a fixed cadence in both scenarios.
package scenario
