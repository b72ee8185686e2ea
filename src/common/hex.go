package common

// ShortHash returns the first 8 characters of a hex hash, for logs.
func ShortHash(hash string) string {
	if len(hash) <= 8 {
		return hash
	}
	return hash[:8]
}
