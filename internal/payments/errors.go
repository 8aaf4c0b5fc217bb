package payments

import (
	"errors"
	"fmt"
)

// Domain errors are terminal for the nonce they concern. Storage errors are
// the transient infrastructure category and the only kind a client may retry
// against the same nonce unconditionally.
var (
	ErrValidation       = errors.New("invalid request")
	ErrNonceNotFound    = errors.New("nonce not found")
	ErrNonceExpired     = errors.New("nonce expired")
	ErrAlreadySettled   = errors.New("nonce already settled")
	ErrSignatureInvalid = errors.New("signature verification failed")
	ErrNonceCollision   = errors.New("nonce generation collided")
)

// StorageError wraps a store-layer fault (connection, disk) so handlers can
// tell it apart from domain outcomes.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "storage error: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// SplitMismatchError reports the first split-policy check that failed.
type SplitMismatchError struct {
	Reason string
}

func (e *SplitMismatchError) Error() string { return "split payment mismatch: " + e.Reason }

// InsufficientFundsError is returned before submission when the payer cannot
// cover the transfer.
type InsufficientFundsError struct {
	Required  uint64
	Available uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %d, available %d", e.Required, e.Available)
}

// SubmissionFailureError means the ledger provably refused the transaction:
// either it was never sent, or the node rejected it with a definitive error.
// Nothing is in flight and the settlement claim can be released.
type SubmissionFailureError struct {
	Cause error
}

func (e *SubmissionFailureError) Error() string { return "transaction submission failed: " + e.Cause.Error() }
func (e *SubmissionFailureError) Unwrap() error { return e.Cause }

// SettlementUncertainError reports a failure after the transaction may have
// reached the ledger: a transport fault on submit, a broken or canceled
// confirmation wait. The transfer could still confirm, so the settlement
// claim must be kept.
type SettlementUncertainError struct {
	Signature string
	Cause     error
}

func (e *SettlementUncertainError) Error() string {
	return "settlement outcome uncertain for transaction " + e.Signature + ": " + e.Cause.Error()
}
func (e *SettlementUncertainError) Unwrap() error { return e.Cause }

// ConfirmationTimeoutError means the transaction was submitted but the
// confirmation wait elapsed; its on-chain fate is unknown.
type ConfirmationTimeoutError struct {
	Signature string
}

func (e *ConfirmationTimeoutError) Error() string {
	return "confirmation timed out for transaction " + e.Signature
}
