package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"SolPayGate/internal/models"
	"SolPayGate/internal/payments"

	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// nonceBytes sized so a collision is a hardware fault, not a probability.
const (
	nonceBytes        = 24
	maxCreateAttempts = 5
)

// CreateParams are the issuance inputs copied into a fresh NonceRecord.
type CreateParams struct {
	Amount      uint64
	Recipient   string
	ResourceID  string
	ResourceURL string
	Split       *models.SplitPaymentSpec
	TTL         time.Duration
}

// NonceStore is the single source of truth for issued authorizations.
// ClaimSettlement is the one atomic mutation that prevents double
// settlement; every other write is bookkeeping around it.
type NonceStore interface {
	CreateNonce(ctx context.Context, p CreateParams) (*models.NonceRecord, error)
	GetNonce(ctx context.Context, nonce string) (*models.NonceRecord, error)
	MarkVerified(ctx context.Context, nonce, clientPublicKey string) error
	ClaimSettlement(ctx context.Context, nonce, txSig string, now time.Time) error
	MarkSettled(ctx context.Context, nonce, txSig string) error
	ReleaseClaim(ctx context.Context, nonce, txSig string) error
	MarkFailed(ctx context.Context, nonce string) error
	RecordAttempt(ctx context.Context, rec *models.TransactionRecord) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context) (*models.StoreStats, error)
}

// Store is the postgres-backed NonceStore.
type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

var _ NonceStore = (*Store)(nil)

func (s *Store) CreateNonce(ctx context.Context, p CreateParams) (*models.NonceRecord, error) {
	var splitJSON []byte
	if p.Split != nil && p.Split.Enabled {
		b, err := json.Marshal(p.Split)
		if err != nil {
			return nil, err
		}
		splitJSON = b
	}

	now := time.Now().UTC()
	rec := &models.NonceRecord{
		Amount:      p.Amount,
		Recipient:   p.Recipient,
		ResourceID:  p.ResourceID,
		ResourceURL: p.ResourceURL,
		ExpiresAt:   now.Add(p.TTL),
		Status:      models.NoncePending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if splitJSON != nil {
		rec.SplitPayment = p.Split
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		rec.Nonce = NewNonceToken()
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO nonces (
				nonce, amount, recipient, resource_id, resource_url,
				split_payment, expires_at, status, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`,
			rec.Nonce,
			rec.Amount,
			rec.Recipient,
			rec.ResourceID,
			rec.ResourceURL,
			splitJSON,
			rec.ExpiresAt,
			rec.Status,
			rec.CreatedAt,
			rec.UpdatedAt,
		)
		if err == nil {
			return rec, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			continue
		}
		return nil, &payments.StorageError{Err: err}
	}
	return nil, payments.ErrNonceCollision
}

func (s *Store) GetNonce(ctx context.Context, nonce string) (*models.NonceRecord, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT nonce, amount, recipient, resource_id, resource_url,
			client_public_key, split_payment, expires_at, status,
			transaction_signature, created_at, updated_at
		FROM nonces WHERE nonce=$1
	`, nonce)
	return scanNonce(row)
}

func (s *Store) MarkVerified(ctx context.Context, nonce, clientPublicKey string) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE nonces
		SET status=$2, client_public_key=$3, updated_at=now()
		WHERE nonce=$1 AND status IN ('pending','verified')
	`, nonce, models.NonceVerified, clientPublicKey)
	if err != nil {
		return &payments.StorageError{Err: err}
	}
	if res.RowsAffected() == 0 {
		return s.classify(ctx, nonce, time.Now().UTC())
	}
	return nil
}

// ClaimSettlement is the conditional update guarding exactly-once
// settlement: the signature is set only while it is still null and the
// nonce has not expired. Zero rows affected is decoded into the domain
// error the caller reports.
func (s *Store) ClaimSettlement(ctx context.Context, nonce, txSig string, now time.Time) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE nonces
		SET transaction_signature=$2, status=$3, updated_at=now()
		WHERE nonce=$1 AND transaction_signature IS NULL AND expires_at > $4
	`, nonce, txSig, models.NonceSettling, now)
	if err != nil {
		return &payments.StorageError{Err: err}
	}
	if res.RowsAffected() == 0 {
		return s.classify(ctx, nonce, now)
	}
	return nil
}

func (s *Store) MarkSettled(ctx context.Context, nonce, txSig string) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE nonces
		SET status=$3, updated_at=now()
		WHERE nonce=$1 AND transaction_signature=$2
	`, nonce, txSig, models.NonceSettled)
	if err != nil {
		return &payments.StorageError{Err: err}
	}
	if res.RowsAffected() == 0 {
		return payments.ErrNonceNotFound
	}
	return nil
}

// ReleaseClaim undoes a claim whose submission the ledger rejected outright.
// It only matches our own claim so a competing settlement is never clobbered.
func (s *Store) ReleaseClaim(ctx context.Context, nonce, txSig string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE nonces
		SET transaction_signature=NULL, status=$3, updated_at=now()
		WHERE nonce=$1 AND transaction_signature=$2 AND status=$4
	`, nonce, txSig, models.NonceVerified, models.NonceSettling)
	if err != nil {
		return &payments.StorageError{Err: err}
	}
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, nonce string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE nonces SET status=$2, updated_at=now() WHERE nonce=$1
	`, nonce, models.NonceFailed)
	if err != nil {
		return &payments.StorageError{Err: err}
	}
	return nil
}

func (s *Store) RecordAttempt(ctx context.Context, rec *models.TransactionRecord) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO settlement_attempts (
			id, nonce, transaction_signature, status, error_message, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		rec.ID,
		rec.Nonce,
		rec.TransactionSignature,
		rec.Status,
		rec.ErrorMessage,
		rec.CreatedAt,
	)
	if err != nil {
		return &payments.StorageError{Err: err}
	}
	return nil
}

// SweepExpired removes authorizations that expired without ever being
// claimed. The signature guard keeps every settled transfer out of reach
// regardless of status.
func (s *Store) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.Pool.Exec(ctx, `
		DELETE FROM nonces
		WHERE expires_at <= $1
		  AND transaction_signature IS NULL
		  AND status IN ('pending','verified','expired')
	`, now)
	if err != nil {
		return 0, &payments.StorageError{Err: err}
	}
	return res.RowsAffected(), nil
}

func (s *Store) Stats(ctx context.Context) (*models.StoreStats, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT
			count(*),
			count(*) FILTER (WHERE status='settled'),
			count(*) FILTER (WHERE status='failed'),
			count(*) FILTER (WHERE status IN ('pending','verified','settling') AND expires_at > $1),
			count(*) FILTER (WHERE status='expired' OR (status IN ('pending','verified') AND expires_at <= $1))
		FROM nonces
	`, time.Now().UTC())

	var st models.StoreStats
	if err := row.Scan(&st.TotalIssued, &st.Settled, &st.Failed, &st.Pending, &st.Expired); err != nil {
		return nil, &payments.StorageError{Err: err}
	}
	return &st, nil
}

// classify turns a zero-row conditional update into the domain error behind
// it by re-reading the record.
func (s *Store) classify(ctx context.Context, nonce string, now time.Time) error {
	rec, err := s.GetNonce(ctx, nonce)
	if err != nil {
		return err
	}
	if rec.TransactionSignature != nil {
		return payments.ErrAlreadySettled
	}
	if !now.Before(rec.ExpiresAt) {
		return payments.ErrNonceExpired
	}
	return payments.ErrNonceNotFound
}

func scanNonce(row pgx.Row) (*models.NonceRecord, error) {
	var rec models.NonceRecord
	var resourceURL sql.NullString
	var clientKey sql.NullString
	var splitJSON []byte
	var txSig sql.NullString

	err := row.Scan(
		&rec.Nonce,
		&rec.Amount,
		&rec.Recipient,
		&rec.ResourceID,
		&resourceURL,
		&clientKey,
		&splitJSON,
		&rec.ExpiresAt,
		&rec.Status,
		&txSig,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payments.ErrNonceNotFound
		}
		return nil, &payments.StorageError{Err: err}
	}

	if resourceURL.Valid {
		rec.ResourceURL = resourceURL.String
	}
	if clientKey.Valid {
		rec.ClientPublicKey = &clientKey.String
	}
	if txSig.Valid {
		rec.TransactionSignature = &txSig.String
	}
	if len(splitJSON) > 0 {
		var split models.SplitPaymentSpec
		if err := json.Unmarshal(splitJSON, &split); err != nil {
			return nil, &payments.StorageError{Err: err}
		}
		rec.SplitPayment = &split
	}
	return &rec, nil
}

// NewNonceToken returns a fresh high-entropy authorization token.
func NewNonceToken() string {
	b := make([]byte, nonceBytes)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base58.Encode(b)
}
