package payments

import (
	"crypto/ed25519"
	"encoding/base64"

	solana "github.com/gagliardetto/solana-go"
)

// VerifySignature checks a detached ed25519 signature over the serialized
// payload against a base58 Solana public key. Malformed keys, signatures and
// decode failures are indistinguishable from a bad signature: the result is
// false, never an error.
func VerifySignature(payload []byte, signature []byte, publicKey string) bool {
	pub, err := solana.PublicKeyFromBase58(publicKey)
	if err != nil {
		return false
	}
	if len(signature) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub.Bytes(), payload, signature)
}

// DecodeSignature accepts the wire encoding of a detached signature. Clients
// send base64; base58 is accepted for parity with Solana tooling.
func DecodeSignature(s string) ([]byte, bool) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil && len(b) == ed25519.SignatureSize {
		return b, true
	}
	if sig, err := solana.SignatureFromBase58(s); err == nil {
		return sig[:], true
	}
	return nil, false
}
