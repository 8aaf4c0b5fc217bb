package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"testing"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SolPayGate/internal/chain"
	"SolPayGate/internal/models"
	"SolPayGate/internal/payments"
	"SolPayGate/internal/store"
)

// fakeLedger scripts the ledger's answers for executor tests.
type fakeLedger struct {
	balance    uint64
	balanceErr error
	submitErr  error
	confirmErr error
	submitted  [][]byte
}

func (f *fakeLedger) GetBalance(ctx context.Context, address string) (uint64, error) {
	return f.balance, f.balanceErr
}

func (f *fakeLedger) SubmitTransfer(ctx context.Context, signedTx []byte) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, signedTx)
	return "submitted", nil
}

func (f *fakeLedger) WaitForConfirmation(ctx context.Context, signature string) error {
	return f.confirmErr
}

func realExecutor(ledger chain.Ledger, feePayer solana.PrivateKey) *SettlementExecutor {
	return &SettlementExecutor{
		Ledger:         ledger,
		FeePayer:       feePayer,
		ConfirmTimeout: time.Second,
	}
}

// buildSignedTransfer assembles the partially signed transfer a client
// would attach to its settle request: payer signs for value, the fee payer
// slot is left for the facilitator.
func buildSignedTransfer(t *testing.T, payer *solana.Wallet, feePayer solana.PublicKey, amount uint64) []byte {
	t.Helper()
	recipient := solana.NewWallet().PublicKey()
	tx, err := solana.NewTransactionBuilder().
		AddInstruction(system.NewTransferInstruction(amount, payer.PublicKey(), recipient).Build()).
		SetRecentBlockHash(solana.Hash{}).
		SetFeePayer(feePayer).
		Build()
	require.NoError(t, err)
	require.NoError(t, chain.CoSign(tx, payer.PrivateKey))

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func TestExecutorPrepareInsufficientFunds(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	exec := realExecutor(&fakeLedger{balance: 10}, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	_, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")

	var insufficient *payments.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, uint64(100000), insufficient.Required)
	assert.Equal(t, uint64(10), insufficient.Available)
}

func TestExecutorPrepareMissingTransfer(t *testing.T) {
	feePayer := solana.NewWallet()
	exec := realExecutor(&fakeLedger{balance: 1 << 40}, feePayer.PrivateKey)

	_, err := exec.Prepare(context.Background(), solana.NewWallet().PublicKey().String(), 100, nil, "nonce")
	assert.ErrorIs(t, err, payments.ErrValidation)
}

func TestExecutorPrepareCoSignsAndExecutes(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	ledger := &fakeLedger{balance: 1 << 40}
	exec := realExecutor(ledger, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	prepared, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")
	require.NoError(t, err)
	assert.NotEmpty(t, prepared.Signature)

	// The signature is known before anything is submitted.
	require.Empty(t, ledger.submitted)

	require.NoError(t, exec.Execute(context.Background(), prepared))
	require.Len(t, ledger.submitted, 1)

	// The submitted transfer carries both the payer's and the fee payer's
	// signatures, and its id matches what Prepare reported.
	tx, err := chain.DecodeTransaction(ledger.submitted[0])
	require.NoError(t, err)
	id, err := chain.TransactionID(tx)
	require.NoError(t, err)
	assert.Equal(t, prepared.Signature, id)
}

func TestExecutorExecuteSubmissionRejected(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	ledger := &fakeLedger{
		balance:   1 << 40,
		submitErr: fmt.Errorf("%w: blockhash not found", chain.ErrRejected),
	}
	exec := realExecutor(ledger, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	prepared, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")
	require.NoError(t, err)

	err = exec.Execute(context.Background(), prepared)
	var submission *payments.SubmissionFailureError
	assert.ErrorAs(t, err, &submission)
}

func TestExecutorExecuteTransportFaultIsUncertain(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	ledger := &fakeLedger{balance: 1 << 40, submitErr: errors.New("connection reset")}
	exec := realExecutor(ledger, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	prepared, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")
	require.NoError(t, err)

	// A transport fault does not prove the node never accepted the
	// transaction, so it must not come back as a plain rejection.
	err = exec.Execute(context.Background(), prepared)
	var uncertain *payments.SettlementUncertainError
	require.ErrorAs(t, err, &uncertain)
	assert.Equal(t, prepared.Signature, uncertain.Signature)
}

func TestExecutorExecuteCanceledWaitIsUncertain(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	ledger := &fakeLedger{balance: 1 << 40, confirmErr: context.Canceled}
	exec := realExecutor(ledger, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	prepared, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")
	require.NoError(t, err)

	err = exec.Execute(context.Background(), prepared)
	var uncertain *payments.SettlementUncertainError
	require.ErrorAs(t, err, &uncertain)
	assert.Equal(t, prepared.Signature, uncertain.Signature)
}

func TestExecutorExecuteOnChainFailureRejects(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	ledger := &fakeLedger{
		balance:    1 << 40,
		confirmErr: fmt.Errorf("%w: transaction failed on chain", chain.ErrRejected),
	}
	exec := realExecutor(ledger, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	prepared, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")
	require.NoError(t, err)

	err = exec.Execute(context.Background(), prepared)
	var submission *payments.SubmissionFailureError
	assert.ErrorAs(t, err, &submission)
}

func TestExecutorExecuteConfirmationTimeout(t *testing.T) {
	feePayer := solana.NewWallet()
	payer := solana.NewWallet()
	ledger := &fakeLedger{balance: 1 << 40, confirmErr: context.DeadlineExceeded}
	exec := realExecutor(ledger, feePayer.PrivateKey)

	raw := buildSignedTransfer(t, payer, feePayer.PublicKey(), 100000)
	prepared, err := exec.Prepare(context.Background(), payer.PublicKey().String(), 100000, raw, "nonce")
	require.NoError(t, err)

	err = exec.Execute(context.Background(), prepared)
	var timeout *payments.ConfirmationTimeoutError
	require.ErrorAs(t, err, &timeout)
	assert.Equal(t, prepared.Signature, timeout.Signature)
}

func realModeService(mem *store.Memory, ledger chain.Ledger, feePayer solana.PrivateKey) *PaymentService {
	svc := newTestService(mem)
	svc.Executor = realExecutor(ledger, feePayer)
	return svc
}

func realModeRequest(t *testing.T, svc *PaymentService, feePayer solana.PublicKey) (*models.NonceRecord, *PaymentRequest) {
	t.Helper()
	payer := solana.NewWallet()
	rec := issueTestNonce(t, svc, nil)
	req := signedRequest(t, rec, payer)
	req.SignedTransaction = base64.StdEncoding.EncodeToString(
		buildSignedTransfer(t, payer, feePayer, rec.Amount))
	return rec, req
}

func TestSettleRejectedSubmissionReleasesClaim(t *testing.T) {
	feePayer := solana.NewWallet()
	mem := store.NewMemory()
	ledger := &fakeLedger{
		balance:   1 << 40,
		submitErr: fmt.Errorf("%w: account not found", chain.ErrRejected),
	}
	svc := realModeService(mem, ledger, feePayer.PrivateKey)
	rec, req := realModeRequest(t, svc, feePayer.PublicKey())

	_, err := svc.Settle(context.Background(), req)
	var submission *payments.SubmissionFailureError
	require.ErrorAs(t, err, &submission)

	// The claim was released: no signature, and the nonce stays retryable.
	got, err := mem.GetNonce(context.Background(), rec.Nonce)
	require.NoError(t, err)
	assert.Nil(t, got.TransactionSignature)
	assert.Equal(t, models.NonceVerified, got.Status)

	// The audit row keeps the claimed signature for reconciliation.
	attempts := mem.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptFailed, attempts[0].Status)
	require.NotNil(t, attempts[0].ErrorMessage)
	require.NotNil(t, attempts[0].TransactionSignature)

	// A retry against a recovered ledger settles the same nonce.
	ledger.submitErr = nil
	sig, err := svc.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, sig)
}

func TestSettleTransportFaultRetainsClaim(t *testing.T) {
	feePayer := solana.NewWallet()
	mem := store.NewMemory()
	ledger := &fakeLedger{balance: 1 << 40, submitErr: errors.New("connection reset")}
	svc := realModeService(mem, ledger, feePayer.PrivateKey)
	rec, req := realModeRequest(t, svc, feePayer.PublicKey())

	_, err := svc.Settle(context.Background(), req)
	var uncertain *payments.SettlementUncertainError
	require.ErrorAs(t, err, &uncertain)

	got, err := mem.GetNonce(context.Background(), rec.Nonce)
	require.NoError(t, err)
	require.NotNil(t, got.TransactionSignature)
	assert.Equal(t, models.NonceFailed, got.Status)

	_, err = svc.Settle(context.Background(), req)
	assert.ErrorIs(t, err, payments.ErrAlreadySettled)
}

func TestSettleCanceledWaitRetainsClaim(t *testing.T) {
	feePayer := solana.NewWallet()
	mem := store.NewMemory()
	ledger := &fakeLedger{balance: 1 << 40, confirmErr: context.Canceled}
	svc := realModeService(mem, ledger, feePayer.PrivateKey)
	rec, req := realModeRequest(t, svc, feePayer.PublicKey())

	payer := solana.NewWallet()
	_, err := svc.Settle(context.Background(), req)
	var uncertain *payments.SettlementUncertainError
	require.ErrorAs(t, err, &uncertain)
	require.Len(t, ledger.submitted, 1)

	// The submission is in flight; the claim must survive a broken wait so a
	// re-signed transfer for the same nonce can never reach the ledger.
	got, err := mem.GetNonce(context.Background(), rec.Nonce)
	require.NoError(t, err)
	require.NotNil(t, got.TransactionSignature)
	assert.Equal(t, models.NonceFailed, got.Status)

	retry := signedRequest(t, rec, payer)
	retry.SignedTransaction = base64.StdEncoding.EncodeToString(
		buildSignedTransfer(t, payer, feePayer.PublicKey(), rec.Amount))
	_, err = svc.Settle(context.Background(), retry)
	assert.ErrorIs(t, err, payments.ErrAlreadySettled)
	assert.Len(t, ledger.submitted, 1)
}

func TestSettleConfirmationTimeoutRetainsClaim(t *testing.T) {
	feePayer := solana.NewWallet()
	mem := store.NewMemory()
	ledger := &fakeLedger{balance: 1 << 40, confirmErr: context.DeadlineExceeded}
	svc := realModeService(mem, ledger, feePayer.PrivateKey)
	rec, req := realModeRequest(t, svc, feePayer.PublicKey())

	_, err := svc.Settle(context.Background(), req)
	var timeout *payments.ConfirmationTimeoutError
	require.ErrorAs(t, err, &timeout)

	// The transaction may still land, so the claim is kept and no second
	// attempt can be made with this nonce.
	got, err := mem.GetNonce(context.Background(), rec.Nonce)
	require.NoError(t, err)
	require.NotNil(t, got.TransactionSignature)
	assert.Equal(t, models.NonceFailed, got.Status)

	_, err = svc.Settle(context.Background(), req)
	assert.ErrorIs(t, err, payments.ErrAlreadySettled)
}

func TestSettleInsufficientFundsAudited(t *testing.T) {
	feePayer := solana.NewWallet()
	mem := store.NewMemory()
	svc := realModeService(mem, &fakeLedger{balance: 5}, feePayer.PrivateKey)
	rec, req := realModeRequest(t, svc, feePayer.PublicKey())

	_, err := svc.Settle(context.Background(), req)
	var insufficient *payments.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)

	// Nothing was claimed; the audit log still records the refusal.
	got, err := mem.GetNonce(context.Background(), rec.Nonce)
	require.NoError(t, err)
	assert.Nil(t, got.TransactionSignature)

	attempts := mem.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, models.AttemptFailed, attempts[0].Status)
}
