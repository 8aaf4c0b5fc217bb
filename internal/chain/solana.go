package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

// SolanaLedger talks to a Solana RPC node. Confirmation is polled at
// pollInterval until the requested commitment is reached or ctx expires.
type SolanaLedger struct {
	client       *rpc.Client
	commitment   rpc.CommitmentType
	pollInterval time.Duration
}

func NewSolanaLedger(rpcURL string, commitment string) *SolanaLedger {
	c := rpc.CommitmentConfirmed
	if commitment == "finalized" {
		c = rpc.CommitmentFinalized
	}
	return &SolanaLedger{
		client:       rpc.New(rpcURL),
		commitment:   c,
		pollInterval: 500 * time.Millisecond,
	}
}

func (l *SolanaLedger) GetBalance(ctx context.Context, address string) (uint64, error) {
	pub, err := solana.PublicKeyFromBase58(address)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", address, err)
	}
	res, err := l.client.GetBalance(ctx, pub, l.commitment)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

func (l *SolanaLedger) SubmitTransfer(ctx context.Context, signedTx []byte) (string, error) {
	tx, err := DecodeTransaction(signedTx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRejected, err)
	}
	sig, err := l.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		// An RPC error response means the node received and refused the
		// transaction. Anything else is a transport fault and proves nothing.
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
		return "", err
	}
	return sig.String(), nil
}

func (l *SolanaLedger) WaitForConfirmation(ctx context.Context, signature string) error {
	sig, err := solana.SignatureFromBase58(signature)
	if err != nil {
		return fmt.Errorf("invalid signature %q: %w", signature, err)
	}

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()
	for {
		out, err := l.client.GetSignatureStatuses(ctx, true, sig)
		if err == nil && len(out.Value) > 0 && out.Value[0] != nil {
			st := out.Value[0]
			if st.Err != nil {
				return fmt.Errorf("%w: transaction failed on chain: %v", ErrRejected, st.Err)
			}
			if st.ConfirmationStatus == rpc.ConfirmationStatusConfirmed ||
				st.ConfirmationStatus == rpc.ConfirmationStatusFinalized {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// DecodeTransaction parses the wire form of a signed transaction.
func DecodeTransaction(raw []byte) (*solana.Transaction, error) {
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}

// DecodeBase64Transaction parses the base64 encoding clients put on the wire.
func DecodeBase64Transaction(s string) (*solana.Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode transaction base64: %w", err)
	}
	return DecodeTransaction(raw)
}

// CoSign adds the fee payer's signature to a transaction the payer has
// already partially signed. The payer's instructions are never touched.
func CoSign(tx *solana.Transaction, feePayer solana.PrivateKey) error {
	messageBytes, err := tx.Message.MarshalBinary()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	signature, err := feePayer.Sign(messageBytes)
	if err != nil {
		return fmt.Errorf("sign message: %w", err)
	}
	accountIndex, err := tx.GetAccountIndex(feePayer.PublicKey())
	if err != nil {
		return fmt.Errorf("fee payer not present in transaction: %w", err)
	}
	if len(tx.Signatures) <= int(accountIndex) {
		grown := make([]solana.Signature, accountIndex+1)
		copy(grown, tx.Signatures)
		tx.Signatures = grown
	}
	tx.Signatures[accountIndex] = signature
	return nil
}

// TransactionID returns the signature Solana uses as the transaction id.
func TransactionID(tx *solana.Transaction) (string, error) {
	if len(tx.Signatures) == 0 {
		return "", errors.New("transaction carries no signatures")
	}
	return tx.Signatures[0].String(), nil
}
