package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"

	"SolPayGate/internal/models"
	"SolPayGate/internal/payments"
	"SolPayGate/internal/store"
)

// PaymentRequest is the wire value a client presents to verify and settle.
// Only the fields settlement needs are ever copied into the nonce record.
type PaymentRequest struct {
	Payload           payments.AuthorizationPayload `json:"payload"`
	Signature         string                        `json:"signature"`
	ClientPublicKey   string                        `json:"clientPublicKey"`
	SignedTransaction string                        `json:"signedTransaction,omitempty"`
}

// IssueParams are the inputs to nonce issuance.
type IssueParams struct {
	Amount      uint64                   `json:"amount"`
	Recipient   string                   `json:"recipient"`
	ResourceID  string                   `json:"resourceId"`
	ResourceURL string                   `json:"resourceUrl,omitempty"`
	Split       *models.SplitPaymentSpec `json:"splitPayment,omitempty"`
	TTLSeconds  int64                    `json:"ttlSeconds,omitempty"`
}

// PaymentService owns the authorization lifecycle: issued -> verified ->
// settled/failed/expired. Verify never consumes a nonce; the settlement
// claim inside Settle is the only consuming transition.
type PaymentService struct {
	Store      store.NonceStore
	Executor   *SettlementExecutor
	Fees       payments.FeePolicy
	DefaultTTL time.Duration
}

func (s *PaymentService) IssueNonce(ctx context.Context, p IssueParams) (*models.NonceRecord, error) {
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", payments.ErrValidation)
	}
	if _, err := solana.PublicKeyFromBase58(p.Recipient); err != nil {
		return nil, fmt.Errorf("%w: invalid recipient address", payments.ErrValidation)
	}
	if p.ResourceID == "" {
		return nil, fmt.Errorf("%w: resourceId is required", payments.ErrValidation)
	}
	if p.Split != nil && p.Split.Enabled {
		if len(p.Split.Recipients) == 0 {
			return nil, fmt.Errorf("%w: split payment enabled with no recipients", payments.ErrValidation)
		}
		if p.Split.TotalAmount != p.Amount {
			return nil, fmt.Errorf("%w: split total must equal authorized amount", payments.ErrValidation)
		}
	}

	ttl := s.DefaultTTL
	if p.TTLSeconds > 0 {
		ttl = time.Duration(p.TTLSeconds) * time.Second
	}
	return s.Store.CreateNonce(ctx, store.CreateParams{
		Amount:      p.Amount,
		Recipient:   p.Recipient,
		ResourceID:  p.ResourceID,
		ResourceURL: p.ResourceURL,
		Split:       p.Split,
		TTL:         ttl,
	})
}

// Verify runs the full guard set without consuming the nonce. A failed
// guard leaves the record as it was; re-verification is always allowed.
func (s *PaymentService) Verify(ctx context.Context, req *PaymentRequest) (*models.NonceRecord, error) {
	rec, err := s.guard(ctx, req, time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.Store.MarkVerified(ctx, rec.Nonce, req.ClientPublicKey); err != nil {
		return nil, err
	}
	return s.Store.GetNonce(ctx, rec.Nonce)
}

// Settle performs exactly-once settlement. The store claim happens after
// the transaction signature is known but before submission, so of two
// concurrent calls one submits and the other observes AlreadySettled
// without ever reaching the ledger.
func (s *PaymentService) Settle(ctx context.Context, req *PaymentRequest) (string, error) {
	now := time.Now().UTC()
	// Verify and settle are independent HTTP calls; settle re-checks
	// everything rather than trusting a prior verify.
	rec, err := s.guard(ctx, req, now)
	if err != nil {
		return "", err
	}

	var signedTx []byte
	if req.SignedTransaction != "" {
		signedTx, err = base64.StdEncoding.DecodeString(req.SignedTransaction)
		if err != nil {
			return "", fmt.Errorf("%w: signed transaction is not valid base64", payments.ErrValidation)
		}
	}

	prepared, err := s.Executor.Prepare(ctx, req.ClientPublicKey, rec.Amount, signedTx, rec.Nonce)
	if err != nil {
		var insufficient *payments.InsufficientFundsError
		if errors.As(err, &insufficient) {
			s.recordAttempt(ctx, rec.Nonce, nil, err)
		}
		return "", err
	}

	if err := s.Store.ClaimSettlement(ctx, rec.Nonce, prepared.Signature, now); err != nil {
		if errors.Is(err, payments.ErrAlreadySettled) {
			s.recordAttempt(ctx, rec.Nonce, nil, err)
		}
		return "", err
	}

	if err := s.Executor.Execute(ctx, prepared); err != nil {
		var rejected *payments.SubmissionFailureError
		if errors.As(err, &rejected) {
			// The ledger provably refused the transfer; nothing is in
			// flight, so the claim is released and the client may retry
			// this nonce.
			if relErr := s.Store.ReleaseClaim(ctx, rec.Nonce, prepared.Signature); relErr != nil {
				log.Printf("release claim nonce=%s: %v", rec.Nonce, relErr)
			}
			s.recordAttempt(ctx, rec.Nonce, &prepared.Signature, err)
			return "", err
		}
		// Timed out, canceled or faulted after submission: the transaction
		// may still land. The claim stays so no second attempt can race a
		// late confirmation.
		if markErr := s.Store.MarkFailed(ctx, rec.Nonce); markErr != nil {
			log.Printf("mark failed nonce=%s: %v", rec.Nonce, markErr)
		}
		s.recordAttempt(ctx, rec.Nonce, &prepared.Signature, err)
		return "", err
	}

	if err := s.Store.MarkSettled(ctx, rec.Nonce, prepared.Signature); err != nil {
		log.Printf("mark settled nonce=%s sig=%s: %v", rec.Nonce, prepared.Signature, err)
	}
	s.recordAttempt(ctx, rec.Nonce, &prepared.Signature, nil)
	return prepared.Signature, nil
}

func (s *PaymentService) GetNonce(ctx context.Context, nonce string) (*models.NonceRecord, error) {
	return s.Store.GetNonce(ctx, nonce)
}

func (s *PaymentService) Stats(ctx context.Context) (*models.StoreStats, error) {
	return s.Store.Stats(ctx)
}

func (s *PaymentService) Cleanup(ctx context.Context) (int64, error) {
	return s.Store.SweepExpired(ctx, time.Now().UTC())
}

// guard is the shared check set for verify and settle: the nonce exists and
// is live, the detached signature covers the payload under the claimed key,
// the payload matches what was issued, and any split spec satisfies the fee
// policy.
func (s *PaymentService) guard(ctx context.Context, req *PaymentRequest, now time.Time) (*models.NonceRecord, error) {
	if req.Payload.Nonce == "" {
		return nil, fmt.Errorf("%w: payload nonce is required", payments.ErrValidation)
	}
	if req.ClientPublicKey == "" {
		return nil, fmt.Errorf("%w: client public key is required", payments.ErrValidation)
	}

	rec, err := s.Store.GetNonce(ctx, req.Payload.Nonce)
	if err != nil {
		return nil, err
	}
	// Both the stored record and the signed payload carry the expiry; either
	// one having passed voids the authorization.
	if !now.Before(rec.ExpiresAt) || req.Payload.Expired(now) {
		return nil, payments.ErrNonceExpired
	}
	if rec.TransactionSignature != nil {
		return nil, payments.ErrAlreadySettled
	}
	if req.Payload.Amount != rec.Amount || req.Payload.Recipient != rec.Recipient {
		return nil, fmt.Errorf("%w: payload does not match issued authorization", payments.ErrValidation)
	}

	sig, ok := payments.DecodeSignature(req.Signature)
	if !ok {
		return nil, payments.ErrSignatureInvalid
	}
	payloadBytes, err := req.Payload.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", payments.ErrValidation, err)
	}
	if !payments.VerifySignature(payloadBytes, sig, req.ClientPublicKey) {
		return nil, payments.ErrSignatureInvalid
	}

	if err := payments.ValidateSplit(rec.SplitPayment, rec.Amount, s.Fees); err != nil {
		return nil, err
	}
	return rec, nil
}

// recordAttempt appends to the audit log. Audit persistence never fails the
// caller's flow; a write error is logged and the settlement outcome stands.
func (s *PaymentService) recordAttempt(ctx context.Context, nonce string, txSig *string, cause error) {
	rec := &models.TransactionRecord{
		ID:        uuid.NewString(),
		Nonce:     nonce,
		Status:    models.AttemptConfirmed,
		CreatedAt: time.Now().UTC(),
	}
	if txSig != nil {
		sig := *txSig
		rec.TransactionSignature = &sig
	}
	if cause != nil {
		rec.Status = models.AttemptFailed
		msg := cause.Error()
		rec.ErrorMessage = &msg
	}
	if err := s.Store.RecordAttempt(ctx, rec); err != nil {
		log.Printf("record attempt nonce=%s: %v", nonce, err)
	}
}
