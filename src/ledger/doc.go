// Package ledger defines the value-transfer Transaction, the Block that batches
// transactions, and the canonical content hashing shared by every node.
//
// Hashes are SHA256 digests of a canonical JSON preimage with sorted keys, in
// the byte form of Python's json.dumps(obj, sort_keys=True): ": " and ", "
// separators, ASCII-only strings and shortest round-trip floats.
// The preimage of a Transaction is {amount, receiver, sender, timestamp}. The
// preimage of a Block is {height, nonce, prev_hash, timestamp, transactions},
// where each transaction contributes its full wire form (including its own
// hash and signature). ProposerID, ExpectedLeader, IsBackupProposal and the
// hash itself are never part of a preimage.
//
// A block's Hash field is derived data. Consumers must call VerifyHash before
// relying on it.
package ledger
