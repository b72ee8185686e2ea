package crypto

// MerkleRoot computes the root of a binary Merkle tree over a list of hex
// hashes. An odd node at any level is paired with itself. The root of an empty
// list is ZeroHash.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ZeroHash
	}

	level := make([]string, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, SimpleHashFromTwoHashes(level[i], level[i+1]))
			} else {
				next = append(next, SimpleHashFromTwoHashes(level[i], level[i]))
			}
		}
		level = next
	}

	return level[0]
}
