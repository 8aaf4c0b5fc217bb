package chain

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/btcsuite/btcd/btcutil/base58"
)

// SimulatedLedger stands in for the chain during integration testing. It
// never performs balance checks, accepts every transfer and confirms
// synchronously. Signatures are deterministic over the submitted bytes so
// repeated runs produce stable audit trails.
type SimulatedLedger struct{}

func NewSimulatedLedger() *SimulatedLedger {
	return &SimulatedLedger{}
}

func (l *SimulatedLedger) GetBalance(ctx context.Context, address string) (uint64, error) {
	return math.MaxUint64, nil
}

func (l *SimulatedLedger) SubmitTransfer(ctx context.Context, signedTx []byte) (string, error) {
	return SimulatedSignature(signedTx), nil
}

func (l *SimulatedLedger) WaitForConfirmation(ctx context.Context, signature string) error {
	return nil
}

// SimulatedSignature derives a signature-shaped token from arbitrary input.
// Two sha256 rounds widen it to the 64 bytes a real ed25519 signature has.
func SimulatedSignature(input []byte) string {
	first := sha256.Sum256(input)
	second := sha256.Sum256(first[:])
	return base58.Encode(append(first[:], second[:]...))
}
