package store

import (
	"context"
	"sync"
	"time"

	"SolPayGate/internal/models"
	"SolPayGate/internal/payments"
)

// Memory is an in-process NonceStore for simulation deployments and tests.
// Single mutex, copy-on-read; suitable for one instance only — a shared
// deployment needs the postgres store.
type Memory struct {
	mu       sync.Mutex
	nonces   map[string]*models.NonceRecord
	attempts []*models.TransactionRecord
}

func NewMemory() *Memory {
	return &Memory{nonces: make(map[string]*models.NonceRecord)}
}

var _ NonceStore = (*Memory)(nil)

func (m *Memory) CreateNonce(ctx context.Context, p CreateParams) (*models.NonceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

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
	if p.Split != nil && p.Split.Enabled {
		split := *p.Split
		rec.SplitPayment = &split
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		token := NewNonceToken()
		if _, exists := m.nonces[token]; exists {
			continue
		}
		rec.Nonce = token
		m.nonces[token] = rec
		out := *rec
		return &out, nil
	}
	return nil, payments.ErrNonceCollision
}

func (m *Memory) GetNonce(ctx context.Context, nonce string) (*models.NonceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.nonces[nonce]
	if !ok {
		return nil, payments.ErrNonceNotFound
	}
	out := *rec
	return &out, nil
}

func (m *Memory) MarkVerified(ctx context.Context, nonce, clientPublicKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.nonces[nonce]
	if !ok {
		return payments.ErrNonceNotFound
	}
	if rec.Status != models.NoncePending && rec.Status != models.NonceVerified {
		return classifyRecord(rec, time.Now().UTC())
	}
	key := clientPublicKey
	rec.ClientPublicKey = &key
	rec.Status = models.NonceVerified
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ClaimSettlement(ctx context.Context, nonce, txSig string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.nonces[nonce]
	if !ok {
		return payments.ErrNonceNotFound
	}
	if rec.TransactionSignature != nil {
		return payments.ErrAlreadySettled
	}
	if !now.Before(rec.ExpiresAt) {
		return payments.ErrNonceExpired
	}
	sig := txSig
	rec.TransactionSignature = &sig
	rec.Status = models.NonceSettling
	rec.UpdatedAt = now
	return nil
}

func (m *Memory) MarkSettled(ctx context.Context, nonce, txSig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.nonces[nonce]
	if !ok || rec.TransactionSignature == nil || *rec.TransactionSignature != txSig {
		return payments.ErrNonceNotFound
	}
	rec.Status = models.NonceSettled
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ReleaseClaim(ctx context.Context, nonce, txSig string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.nonces[nonce]
	if !ok || rec.Status != models.NonceSettling {
		return nil
	}
	if rec.TransactionSignature == nil || *rec.TransactionSignature != txSig {
		return nil
	}
	rec.TransactionSignature = nil
	rec.Status = models.NonceVerified
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) MarkFailed(ctx context.Context, nonce string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.nonces[nonce]; ok {
		rec.Status = models.NonceFailed
		rec.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *Memory) RecordAttempt(ctx context.Context, rec *models.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.attempts = append(m.attempts, &cp)
	return nil
}

// Attempts returns a copy of the audit log, newest last.
func (m *Memory) Attempts() []*models.TransactionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.TransactionRecord, 0, len(m.attempts))
	for _, a := range m.attempts {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

func (m *Memory) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int64
	for token, rec := range m.nonces {
		if rec.ExpiresAt.After(now) || rec.TransactionSignature != nil {
			continue
		}
		switch rec.Status {
		case models.NoncePending, models.NonceVerified, models.NonceExpired:
			delete(m.nonces, token)
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Stats(ctx context.Context) (*models.StoreStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	st := &models.StoreStats{TotalIssued: int64(len(m.nonces))}
	for _, rec := range m.nonces {
		switch rec.Status {
		case models.NonceSettled:
			st.Settled++
		case models.NonceFailed:
			st.Failed++
		case models.NonceExpired:
			st.Expired++
		default:
			if now.Before(rec.ExpiresAt) {
				st.Pending++
			} else {
				st.Expired++
			}
		}
	}
	return st, nil
}

func classifyRecord(rec *models.NonceRecord, now time.Time) error {
	if rec.TransactionSignature != nil {
		return payments.ErrAlreadySettled
	}
	if !now.Before(rec.ExpiresAt) {
		return payments.ErrNonceExpired
	}
	return payments.ErrNonceNotFound
}
