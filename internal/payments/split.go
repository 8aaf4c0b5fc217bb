package payments

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"SolPayGate/internal/models"
)

type FeeMode string

const (
	FeePercentage FeeMode = "percentage"
	FeeFixed      FeeMode = "fixed"
)

// FeePolicy is the configured revenue-share contract a split spec must
// satisfy. It is constructed once at startup and injected; validation never
// reads configuration on its own.
type FeePolicy struct {
	Mode FeeMode
	// Percentage of the total owed to the platform, e.g. 0.4. Used in
	// percentage mode.
	Percentage float64
	// Absolute fee in minimal currency units. Used in fixed mode.
	FixedAmount uint64
	// Address the platform fee must be paid to. Empty skips the check.
	PlatformAddress string
	// Description labels identifying the fee and primary recipients inside a
	// split spec.
	PlatformDescription string
	PrimaryDescription  string
}

// feeScale fixes percentage resolution at one part per million.
const feeScale = 1_000_000

// PlatformFee returns the fee owed on total under this policy. Percentage
// fees round down; the validator absorbs the one-unit remainder. The
// percentage is scaled to an integer ratio so totals beyond float64's exact
// range still divide exactly.
func (p FeePolicy) PlatformFee(total uint64) uint64 {
	if p.Mode == FeeFixed {
		return p.FixedAmount
	}
	ppm := new(big.Int).SetUint64(uint64(math.Round(p.Percentage * feeScale)))
	fee := new(big.Int).Mul(new(big.Int).SetUint64(total), ppm)
	fee.Quo(fee, big.NewInt(feeScale))
	return fee.Uint64()
}

// ValidateSplit checks a split spec against the expected total and the fee
// policy. Checks run in order and stop at the first failure, each with its
// own reason. Fee amounts are recomputed from the authoritative total so a
// client cannot shave the platform share while keeping the sum intact.
func ValidateSplit(spec *models.SplitPaymentSpec, expectedTotal uint64, policy FeePolicy) error {
	if spec == nil || !spec.Enabled {
		return nil
	}
	if len(spec.Recipients) == 0 {
		return &SplitMismatchError{Reason: "split payment enabled with no recipients"}
	}
	if spec.TotalAmount != expectedTotal {
		return &SplitMismatchError{Reason: fmt.Sprintf(
			"total amount %d does not match authorized amount %d", spec.TotalAmount, expectedTotal)}
	}

	var sum uint64
	for _, r := range spec.Recipients {
		sum += r.Amount
	}
	if sum != spec.TotalAmount {
		return &SplitMismatchError{Reason: fmt.Sprintf(
			"recipient amounts sum to %d, want %d", sum, spec.TotalAmount)}
	}

	fee := findRecipient(spec.Recipients, policy.PlatformDescription)
	if fee == nil {
		return &SplitMismatchError{Reason: "no platform fee recipient"}
	}
	wantFee := policy.PlatformFee(expectedTotal)
	if !withinOneUnit(fee.Amount, wantFee) {
		return &SplitMismatchError{Reason: fmt.Sprintf(
			"platform fee %d does not match required fee %d", fee.Amount, wantFee)}
	}
	if policy.PlatformAddress != "" && fee.Address != policy.PlatformAddress {
		return &SplitMismatchError{Reason: "platform fee paid to wrong address"}
	}

	if policy.PrimaryDescription == "" {
		return nil
	}
	primary := findRecipient(spec.Recipients, policy.PrimaryDescription)
	if primary == nil {
		return &SplitMismatchError{Reason: "no primary recipient"}
	}
	wantPrimary := expectedTotal - wantFee
	if !withinOneUnit(primary.Amount, wantPrimary) {
		return &SplitMismatchError{Reason: fmt.Sprintf(
			"primary share %d does not match expected share %d", primary.Amount, wantPrimary)}
	}
	return nil
}

func findRecipient(recipients []models.SplitRecipient, description string) *models.SplitRecipient {
	for i := range recipients {
		if strings.EqualFold(recipients[i].Description, description) {
			return &recipients[i]
		}
	}
	return nil
}

// withinOneUnit tolerates the single minimal-unit drift integer division
// introduces when a percentage split is computed client side.
func withinOneUnit(got, want uint64) bool {
	if got > want {
		return got-want <= 1
	}
	return want-got <= 1
}
