package wallet

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCalculateFeeSchedules(t *testing.T) {
	cases := []struct {
		name     string
		schedule FeeSchedule
		amount   string
		wantFee  string
		wantNet  string
	}{
		{"reward", RewardSchedule, "100", "10", "90"},
		{"peer", PeerTransferSchedule, "40", "1", "39"},
		{"peer rounds to minimal unit", PeerTransferSchedule, "0.1", "0.003", "0.097"},
		{"reward on fractional amount", RewardSchedule, "12.345", "1.235", "11.11"},
		{"free", FreeSchedule, "50", "0", "50"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			amount := decimal.RequireFromString(tc.amount)
			got := CalculateFee(amount, tc.schedule)

			if got.Fee.String() != tc.wantFee {
				t.Fatalf("fee = %s, want %s", got.Fee, tc.wantFee)
			}
			if got.NetAmount.String() != tc.wantNet {
				t.Fatalf("net = %s, want %s", got.NetAmount, tc.wantNet)
			}
			if !got.Fee.Add(got.NetAmount).Equal(amount) {
				t.Fatalf("fee %s + net %s != amount %s", got.Fee, got.NetAmount, amount)
			}
		})
	}
}

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(decimal.RequireFromString("1.2")); got != "1.200 BLURT" {
		t.Fatalf("FormatAmount = %q", got)
	}
	if got := FormatAmount(decimal.NewFromInt(0)); got != "0.000 BLURT" {
		t.Fatalf("FormatAmount zero = %q", got)
	}
}

func TestMemoFormats(t *testing.T) {
	if m := NewTransferMemo(); !strings.HasPrefix(m, "TRANSFER_") || len(m) != len("TRANSFER_")+6 {
		t.Fatalf("transfer memo %q", m)
	}
	if m := NewExternalTransferMemo(); !strings.HasPrefix(m, "BLOCKCHAIN_TRANSFER_") {
		t.Fatalf("external memo %q", m)
	}
	if m := NewFiatDepositMemo(); !strings.HasPrefix(m, "PAYSTACK_DEPOSIT_") || len(m) != len("PAYSTACK_DEPOSIT_")+8 {
		t.Fatalf("fiat memo %q", m)
	}
}

func TestChainDepositMemosDoNotCollide(t *testing.T) {
	// Same timestamp for every memo, so uniqueness rests on the token alone.
	at := time.UnixMilli(1700000000000)
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		m := NewChainDepositMemo(at)
		if seen[m] {
			t.Fatalf("memo %q repeated", m)
		}
		seen[m] = true
	}
}
