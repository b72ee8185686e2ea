package crypto

import (
	"testing"
)

func TestSHA256Hex(t *testing.T) {
	// sha256("abc")
	expected := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if h := SHA256Hex([]byte("abc")); h != expected {
		t.Fatalf("SHA256Hex(abc) should be %s, not %s", expected, h)
	}
}

func TestSimpleSignature(t *testing.T) {
	priv, pub := "node-0", "node-1"

	sig := SimpleSign("message", priv)
	if !SimpleVerify("message", sig, priv) {
		t.Fatalf("signature should verify with the signing key")
	}
	if SimpleVerify("other message", sig, priv) {
		t.Fatalf("signature should not verify for another message")
	}
	if SimpleVerify("message", sig, pub) {
		t.Fatalf("signature should not verify with a different key")
	}
}

func TestHasZeroPrefix(t *testing.T) {
	cases := []struct {
		hash string
		n    int
		ok   bool
	}{
		{"0000ab", 4, true},
		{"000ab0", 4, false},
		{"abc", 0, true},
		{"00", 3, false},
		{"", 0, true},
	}
	for _, c := range cases {
		if got := HasZeroPrefix(c.hash, c.n); got != c.ok {
			t.Errorf("HasZeroPrefix(%q, %d) = %v, want %v", c.hash, c.n, got, c.ok)
		}
	}
}

func TestMerkleRoot(t *testing.T) {
	if MerkleRoot(nil) != ZeroHash {
		t.Fatalf("empty merkle root should be the zero hash")
	}

	a, b, c := SHA256Hex([]byte("a")), SHA256Hex([]byte("b")), SHA256Hex([]byte("c"))

	if MerkleRoot([]string{a}) != a {
		t.Fatalf("single leaf should be its own root")
	}

	ab := SimpleHashFromTwoHashes(a, b)
	cc := SimpleHashFromTwoHashes(c, c)
	expected := SimpleHashFromTwoHashes(ab, cc)

	if root := MerkleRoot([]string{a, b, c}); root != expected {
		t.Fatalf("merkle root should be %s, not %s", expected, root)
	}
}
