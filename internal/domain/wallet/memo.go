package wallet

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Memo prefixes identify the flow that minted a correlation token.
const (
	memoPrefixTransfer     = "TRANSFER"
	memoPrefixExternal     = "BLOCKCHAIN_TRANSFER"
	memoPrefixFiatDeposit  = "PAYSTACK_DEPOSIT"
	memoPrefixChainDeposit = "BLURT_DEPOSIT"
)

const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

func randomToken(n int) string {
	max := big.NewInt(int64(len(tokenAlphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand never fails on supported platforms; fall back to
			// a time-derived index rather than panicking in a money path.
			b[i] = tokenAlphabet[time.Now().UnixNano()%int64(len(tokenAlphabet))]
			continue
		}
		b[i] = tokenAlphabet[idx.Int64()]
	}
	return string(b)
}

// NewTransferMemo mints a memo for an internal transfer when the sender did
// not provide one.
func NewTransferMemo() string {
	return fmt.Sprintf("%s_%s", memoPrefixTransfer, randomToken(6))
}

// NewExternalTransferMemo mints a fresh single-use memo for an external
// ledger transfer intent. The coordinator relies on this never repeating to
// guarantee at-most-once broadcast per intent.
func NewExternalTransferMemo() string {
	return fmt.Sprintf("%s_%s", memoPrefixExternal, randomToken(6))
}

// NewFiatDepositMemo mints the correlation memo for a fiat gateway deposit.
func NewFiatDepositMemo() string {
	return fmt.Sprintf("%s_%s", memoPrefixFiatDeposit, randomToken(8))
}

// NewChainDepositMemo mints a globally unique memo for a direct ledger
// deposit: random token plus millisecond timestamp. The memo is the sole
// mechanism correlating the off-chain intent with the on-chain settlement.
func NewChainDepositMemo(now time.Time) string {
	return fmt.Sprintf("%s_%s_%d", memoPrefixChainDeposit, randomToken(8), now.UnixMilli())
}
