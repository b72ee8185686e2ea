package crypto

import "strings"

// ZeroHash is the 64 character all-zero marker used as the parent hash of the
// genesis block.
var ZeroHash = strings.Repeat("0", 64)

// SimpleSign signs a message by hashing it together with the key.
func SimpleSign(message string, key string) string {
	return SHA256Hex([]byte(message + ":" + key))
}

// SimpleVerify recomputes the signature of message with key and compares it to
// signature.
func SimpleVerify(message string, signature string, key string) bool {
	return signature == SimpleSign(message, key)
}

// HasZeroPrefix reports whether the hex hash starts with n '0' characters.
func HasZeroPrefix(hash string, n int) bool {
	if n <= 0 {
		return true
	}
	if len(hash) < n {
		return false
	}
	for i := 0; i < n; i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}
