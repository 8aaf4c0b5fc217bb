package payments

import (
	"encoding/json"
	"time"
)

// AuthorizationPayload is the signed statement of payment intent. It is
// immutable once issued; the nonce is the sole replay-protection key.
type AuthorizationPayload struct {
	Amount      uint64 `json:"amount"`
	Recipient   string `json:"recipient"`
	ResourceID  string `json:"resourceId"`
	ResourceURL string `json:"resourceUrl,omitempty"`
	Nonce       string `json:"nonce"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Bytes returns the canonical serialization the client signs. Field order is
// fixed by the struct definition, so the same payload always yields the same
// bytes on both sides.
func (p AuthorizationPayload) Bytes() ([]byte, error) {
	return json.Marshal(p)
}

func (p AuthorizationPayload) Expired(now time.Time) bool {
	return now.Unix() >= p.ExpiresAt
}
