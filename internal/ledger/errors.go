package ledger

import (
	"errors"
	"fmt"
)

// ErrNegativeBalance marks a fold that drove an asset balance below zero.
var ErrNegativeBalance = errors.New("negative balance")

// ConsistencyViolation reports a negative balance with enough context to resume.
type ConsistencyViolation struct {
	Account string
	TxHash  string
	Block   uint64
	TxIndex uint64
	Token   string
	Amount  string
}

func (e *ConsistencyViolation) Error() string {
	if e.TxHash == "" {
		return fmt.Sprintf("%s of %s: %s", ErrNegativeBalance, e.Token, e.Amount)
	}
	return fmt.Sprintf("%s of %s for %s at block %d tx %s (index %d): %s",
		ErrNegativeBalance, e.Token, e.Account, e.Block, e.TxHash, e.TxIndex, e.Amount)
}

func (e *ConsistencyViolation) Unwrap() error {
	return ErrNegativeBalance
}
