package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"

	"SolPayGate/internal/chain"
	"SolPayGate/internal/payments"
)

// PreparedSettlement is a settlement whose transaction signature is already
// known but which has not been submitted. The signature is what the store
// claims before anything touches the ledger.
type PreparedSettlement struct {
	Signature string
	tx        *solana.Transaction
}

// SettlementExecutor submits client-signed transfers under the sponsored
// model: the payer signs for value movement, the executor co-signs as fee
// payer and carries the network fee. In simulation it fabricates
// deterministic signatures and never consults the ledger for funds.
type SettlementExecutor struct {
	Ledger         chain.Ledger
	FeePayer       solana.PrivateKey
	Simulate       bool
	ConfirmTimeout time.Duration
}

// Prepare runs every pre-submission step: the payer balance gate, transfer
// decoding and fee-payer co-signing. It never talks to the ledger's write
// path, so a Prepare failure leaves nothing to unwind.
func (e *SettlementExecutor) Prepare(ctx context.Context, payerKey string, amount uint64, signedTx []byte, nonce string) (*PreparedSettlement, error) {
	if e.Simulate {
		seed := signedTx
		if len(seed) == 0 {
			seed = []byte(nonce)
		}
		return &PreparedSettlement{Signature: chain.SimulatedSignature(seed)}, nil
	}

	if len(signedTx) == 0 {
		return nil, fmt.Errorf("%w: signed transaction is required", payments.ErrValidation)
	}

	available, err := e.Ledger.GetBalance(ctx, payerKey)
	if err != nil {
		return nil, &payments.SubmissionFailureError{Cause: err}
	}
	if available < amount {
		return nil, &payments.InsufficientFundsError{Required: amount, Available: available}
	}

	tx, err := chain.DecodeTransaction(signedTx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrValidation, err)
	}
	if err := chain.CoSign(tx, e.FeePayer); err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrValidation, err)
	}
	sig, err := chain.TransactionID(tx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrValidation, err)
	}
	return &PreparedSettlement{Signature: sig, tx: tx}, nil
}

// Execute submits the prepared transfer and waits for confirmation within
// the configured budget. Only a definitive ledger rejection comes back as a
// SubmissionFailureError; every other failure means the transfer may be in
// flight and is reported as uncertain (or as a ConfirmationTimeoutError for
// an elapsed wait) so the caller keeps the settlement claim.
func (e *SettlementExecutor) Execute(ctx context.Context, p *PreparedSettlement) error {
	if e.Simulate {
		return nil
	}

	raw, err := p.tx.MarshalBinary()
	if err != nil {
		return &payments.SubmissionFailureError{Cause: err}
	}
	if _, err := e.Ledger.SubmitTransfer(ctx, raw); err != nil {
		if errors.Is(err, chain.ErrRejected) {
			return &payments.SubmissionFailureError{Cause: err}
		}
		return &payments.SettlementUncertainError{Signature: p.Signature, Cause: err}
	}

	confirmCtx, cancel := context.WithTimeout(ctx, e.ConfirmTimeout)
	defer cancel()
	if err := e.Ledger.WaitForConfirmation(confirmCtx, p.Signature); err != nil {
		if errors.Is(err, chain.ErrRejected) {
			return &payments.SubmissionFailureError{Cause: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return &payments.ConfirmationTimeoutError{Signature: p.Signature}
		}
		return &payments.SettlementUncertainError{Signature: p.Signature, Cause: err}
	}
	return nil
}
