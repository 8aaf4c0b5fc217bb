package chain

import (
	"context"
	"errors"
)

// ErrRejected marks a definitive ledger refusal: the node answered and turned
// the transaction down, or it failed on chain. The transfer is provably not
// in flight. Implementations wrap it so callers can tell a rejection from a
// transport fault, which proves nothing about what the node accepted.
var ErrRejected = errors.New("transfer rejected")

// Ledger is the capability set settlement needs from the underlying chain.
// Production and simulation are two implementations selected once at startup.
type Ledger interface {
	// GetBalance returns the payer's spendable balance in minimal units.
	GetBalance(ctx context.Context, address string) (uint64, error)
	// SubmitTransfer submits a fully signed transfer and returns its
	// transaction signature. Definitive node rejections wrap ErrRejected.
	SubmitTransfer(ctx context.Context, signedTx []byte) (string, error)
	// WaitForConfirmation blocks until the ledger confirms the transaction
	// or ctx expires.
	WaitForConfirmation(ctx context.Context, signature string) error
}
