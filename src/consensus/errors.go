package consensus

import "fmt"

// ConfigurationError is returned when the requested consensus cannot be
// built. It is fatal: a node must not start with it.
type ConfigurationError struct {
	msg string
}

// NewConfigurationError ...
func NewConfigurationError(format string, args ...interface{}) ConfigurationError {
	return ConfigurationError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface
func (e ConfigurationError) Error() string {
	return "consensus configuration: " + e.msg
}

// IsConfigurationError ...
func IsConfigurationError(err error) bool {
	_, ok := err.(ConfigurationError)
	return ok
}

// MineError is returned by Mine when no block was produced. Normal errors are
// part of regular operation (this node is not the leader, or there is nothing
// to mine) and the caller simply tries again on the next tick.
type MineError struct {
	msg    string
	normal bool
}

// Error implements the error interface
func (e MineError) Error() string {
	return e.msg
}

var (
	// ErrNoEligibleProposer means the proposer may not produce the next block.
	ErrNoEligibleProposer = MineError{msg: "proposer is not eligible for next height", normal: true}

	// ErrEmptyPool means there are no pending transactions to include.
	ErrEmptyPool = MineError{msg: "no pending transactions", normal: true}
)

// IsNormalMineError checks that an error is a MineError that should not be
// reported as a failure.
func IsNormalMineError(err error) bool {
	mErr, ok := err.(MineError)
	return ok && mErr.normal
}

// ProofIncompleteError accompanies a block whose proof search ran out of
// budget. The block is still returned: its hash does not meet the target.
type ProofIncompleteError struct {
	Height     int
	Difficulty int
	Attempts   int64
}

// Error implements the error interface
func (e ProofIncompleteError) Error() string {
	return fmt.Sprintf("proof incomplete for height %d: difficulty %d not met after %d attempts",
		e.Height, e.Difficulty, e.Attempts)
}

// IsProofIncomplete ...
func IsProofIncomplete(err error) bool {
	_, ok := err.(ProofIncompleteError)
	return ok
}
