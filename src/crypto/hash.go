package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Hex returns the lowercase hexadecimal SHA256 digest of the data. All
// ledger hashes are carried around in this form.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}

// SimpleHashFromTwoHashes returns the hex SHA256 hash of the concatenation of
// the left and right hex strings.
func SimpleHashFromTwoHashes(left string, right string) string {
	var hasher = sha256.New()
	hasher.Write([]byte(left))
	hasher.Write([]byte(right))
	return hex.EncodeToString(hasher.Sum(nil))
}
