package blockchain

import "fmt"

// RejectReason says why AddBlock refused a block.
type RejectReason uint32

const (
	// BadHash means the stored hash does not match the block content.
	BadHash RejectReason = iota
	// BadHeight means the height is not one above the known parent.
	BadHeight
	// BadGenesis means a height 0 block is not the shared genesis block.
	BadGenesis
	// InvalidTransaction means a transaction in the block failed validation.
	InvalidTransaction
	// BufferFull means the block has no known parent and the out-of-order
	// buffer is at capacity.
	BufferFull
)

func (r RejectReason) String() string {
	switch r {
	case BadHash:
		return "BadHash"
	case BadHeight:
		return "BadHeight"
	case BadGenesis:
		return "BadGenesis"
	case InvalidTransaction:
		return "InvalidTransaction"
	case BufferFull:
		return "BufferFull"
	default:
		return "Unknown"
	}
}

// RejectedBlockError is returned by AddBlock when the block is not adopted.
type RejectedBlockError struct {
	Reason RejectReason
	Hash   string
	Height int
	Detail string
}

func (e RejectedBlockError) Error() string {
	msg := fmt.Sprintf("block %d (%s) rejected: %s", e.Height, e.Hash, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// IsRejected checks that an error is a RejectedBlockError with the given
// reason.
func IsRejected(err error, reason RejectReason) bool {
	rErr, ok := err.(RejectedBlockError)
	return ok && rErr.Reason == reason
}

// IsRejectedBlock checks that an error is a RejectedBlockError of any reason.
func IsRejectedBlock(err error) bool {
	_, ok := err.(RejectedBlockError)
	return ok
}

// GraphDefect qualifies a MalformedGraphError.
type GraphDefect uint32

const (
	// Cycle means the same block was reached twice during enumeration.
	Cycle GraphDefect = iota
	// TooManyBranches means the number of maximal chains exceeds the cap.
	TooManyBranches
	// TooDeep means a chain exceeds the depth cap.
	TooDeep
	// MissingBlock means an index references a block that is not stored.
	MissingBlock
)

func (d GraphDefect) String() string {
	switch d {
	case Cycle:
		return "Cycle"
	case TooManyBranches:
		return "TooManyBranches"
	case TooDeep:
		return "TooDeep"
	case MissingBlock:
		return "MissingBlock"
	default:
		return "Unknown"
	}
}

// MalformedGraphError is returned when fork enumeration gives up. The main
// chain is left untouched when this happens.
type MalformedGraphError struct {
	Defect GraphDefect
	Hash   string
}

func (e MalformedGraphError) Error() string {
	return fmt.Sprintf("malformed block graph: %s at %s", e.Defect, e.Hash)
}

// IsMalformedGraph ...
func IsMalformedGraph(err error) bool {
	_, ok := err.(MalformedGraphError)
	return ok
}

// TxErrType enumerates the ways a transaction can be refused.
type TxErrType uint32

const (
	// NonPositiveAmount ...
	NonPositiveAmount TxErrType = iota
	// InsufficientBalance ...
	InsufficientBalance
	// TxBadHash ...
	TxBadHash
	// Duplicate means the transaction is already pending or already on the
	// main chain.
	Duplicate
)

func (t TxErrType) String() string {
	switch t {
	case NonPositiveAmount:
		return "NonPositiveAmount"
	case InsufficientBalance:
		return "InsufficientBalance"
	case TxBadHash:
		return "BadHash"
	case Duplicate:
		return "Duplicate"
	default:
		return "Unknown"
	}
}

// TransactionErr is returned when a transaction fails validation.
type TransactionErr struct {
	errType TxErrType
	hash    string
}

// NewTransactionErr ...
func NewTransactionErr(errType TxErrType, hash string) TransactionErr {
	return TransactionErr{errType: errType, hash: hash}
}

// Type returns the kind of failure.
func (e TransactionErr) Type() TxErrType {
	return e.errType
}

func (e TransactionErr) Error() string {
	return fmt.Sprintf("transaction %s: %s", e.hash, e.errType)
}

// IsTransactionErr checks that an error is a TransactionErr of type t.
func IsTransactionErr(err error, t TxErrType) bool {
	tErr, ok := err.(TransactionErr)
	return ok && tErr.errType == t
}
