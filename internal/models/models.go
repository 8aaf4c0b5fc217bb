package models

import "time"

type NonceStatus string

const (
	NoncePending  NonceStatus = "pending"
	NonceVerified NonceStatus = "verified"
	NonceSettling NonceStatus = "settling"
	NonceSettled  NonceStatus = "settled"
	NonceFailed   NonceStatus = "failed"
	NonceExpired  NonceStatus = "expired"
)

// NonceRecord is the durable entity backing one payment authorization.
// TransactionSignature transitions nil -> set exactly once; the store
// enforces that, not the callers.
type NonceRecord struct {
	Nonce                string            `json:"nonce"`
	Amount               uint64            `json:"amount"`
	Recipient            string            `json:"recipient"`
	ResourceID           string            `json:"resourceId"`
	ResourceURL          string            `json:"resourceUrl,omitempty"`
	ClientPublicKey      *string           `json:"clientPublicKey,omitempty"`
	SplitPayment         *SplitPaymentSpec `json:"splitPayment,omitempty"`
	ExpiresAt            time.Time         `json:"expiresAt"`
	Status               NonceStatus       `json:"status"`
	TransactionSignature *string           `json:"transactionSignature,omitempty"`
	CreatedAt            time.Time         `json:"createdAt"`
	UpdatedAt            time.Time         `json:"updatedAt"`
}

// SplitPaymentSpec instructs settlement to pay several recipients in one
// atomic transfer. Enabled gates the recipient list so a disabled spec
// carries no recipients at all.
type SplitPaymentSpec struct {
	Enabled     bool             `json:"enabled"`
	TotalAmount uint64           `json:"totalAmount"`
	Recipients  []SplitRecipient `json:"recipients,omitempty"`
}

type SplitRecipient struct {
	Address     string  `json:"address"`
	Amount      uint64  `json:"amount"`
	Percentage  float64 `json:"percentage,omitempty"`
	Description string  `json:"description"`
}

type AttemptStatus string

const (
	AttemptConfirmed AttemptStatus = "confirmed"
	AttemptFailed    AttemptStatus = "failed"
)

// TransactionRecord is one row of the append-only settlement audit log,
// written for every attempt whether or not it reached the chain.
type TransactionRecord struct {
	ID                   string        `json:"id"`
	Nonce                string        `json:"nonce"`
	TransactionSignature *string       `json:"transactionSignature,omitempty"`
	Status               AttemptStatus `json:"status"`
	ErrorMessage         *string       `json:"errorMessage,omitempty"`
	CreatedAt            time.Time     `json:"createdAt"`
}

type StoreStats struct {
	TotalIssued int64 `json:"totalIssued"`
	Settled     int64 `json:"settled"`
	Failed      int64 `json:"failed"`
	Pending     int64 `json:"pending"`
	Expired     int64 `json:"expired"`
}
