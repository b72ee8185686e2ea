package node

import "fmt"

type errInvalidBlock struct {
	hash     string
	proposer string
}

func (e errInvalidBlock) Error() string {
	return fmt.Sprintf("block %s from proposer %q failed consensus validation", e.hash, e.proposer)
}

// IsInvalidBlock reports whether err is a consensus validation failure of an
// inbound block.
func IsInvalidBlock(err error) bool {
	_, ok := err.(errInvalidBlock)
	return ok
}

type errBadSignature struct {
	hash   string
	sender string
}

func (e errBadSignature) Error() string {
	return fmt.Sprintf("transaction %s is not signed by sender %q", e.hash, e.sender)
}

// IsBadSignature reports whether err rejects an inbound transaction whose
// signature does not match its sender.
func IsBadSignature(err error) bool {
	_, ok := err.(errBadSignature)
	return ok
}
