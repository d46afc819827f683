package wallet

import "github.com/shopspring/decimal"

// MinimalUnitPlaces is the smallest representable fraction of the ledger
// currency: 3 decimal places.
const MinimalUnitPlaces = 3

// FeeSchedule maps a transfer context to its platform fee rate.
type FeeSchedule struct {
	rate decimal.Decimal
}

var (
	// RewardSchedule applies to viewer-to-creator rewards.
	RewardSchedule = FeeSchedule{rate: decimal.NewFromFloat(0.10)}
	// PeerTransferSchedule applies to internal peer transfers.
	PeerTransferSchedule = FeeSchedule{rate: decimal.NewFromFloat(0.025)}
	// FreeSchedule applies to deposits and external transfers, which carry
	// no platform fee.
	FreeSchedule = FeeSchedule{rate: decimal.Zero}
)

// Rate returns the schedule's fee rate.
func (s FeeSchedule) Rate() decimal.Decimal { return s.rate }

// FeeBreakdown is the platform fee and remainder for a gross amount.
type FeeBreakdown struct {
	Fee       decimal.Decimal `json:"fee"`
	NetAmount decimal.Decimal `json:"net_amount"`
}

// CalculateFee computes the platform fee and net amount for a gross transfer
// amount under the given schedule. The fee is rounded to the minimal unit and
// the net amount is the exact remainder, so fee + net always equals amount.
// Callers are responsible for ensuring amount > 0.
func CalculateFee(amount decimal.Decimal, schedule FeeSchedule) FeeBreakdown {
	fee := amount.Mul(schedule.rate).Round(MinimalUnitPlaces)
	return FeeBreakdown{
		Fee:       fee,
		NetAmount: amount.Sub(fee),
	}
}

// FormatAmount renders an amount in the ledger currency's display form,
// e.g. "1.234 BLURT".
func FormatAmount(amount decimal.Decimal) string {
	return amount.StringFixed(MinimalUnitPlaces) + " BLURT"
}
