// Package net carries NetworkMessages between forkchain nodes.
//
// A Transport delivers inbound messages on its Consumer channel and sends
// outbound ones with Send and Broadcast. Delivery is best effort: a message
// that cannot be delivered is dropped and the send reports false. Partitions
// are simulated on the sending side: after SetAllowedPeers, Send refuses every
// receiver outside the allowed set until Heal is called.
//
// There are three implementations:
//
// - Inmem: in-process channels, used by the simulator and tests. It can
// inject a random, seeded delivery delay.
//
// - TCP: one listener per node. Every message is a 4-byte big-endian length
// followed by the JSON encoded NetworkMessage. Node i listens on
// base_port + i by default.
//
// - Redis: every node subscribes to its own pub/sub channel on a shared Redis
// server, and sending is a PUBLISH to the receiver's channel. This lets nodes
// run on hosts that cannot reach each other directly.
package net
