// Package wallet defines the core ledger domain model: accounts, transactions
// and the platform fee schedule.
package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxType classifies a wallet transaction.
type TxType string

const (
	TxTransfer   TxType = "transfer"
	TxDeposit    TxType = "deposit"
	TxWithdrawal TxType = "withdrawal"
	TxReward     TxType = "reward"
	TxBlockchain TxType = "blockchain_transfer"
)

// TxStatus is the lifecycle state of a transaction. A confirmed transaction
// is immutable; a pending row may only transition status, never mutate
// amount or fee.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusConfirmed TxStatus = "confirmed"
	StatusFailed    TxStatus = "failed"
)

// Account is the backing store's balance row for a platform user. The copy
// held by the balance cache is advisory; the store re-validates balances at
// execution time.
type Account struct {
	UserID           string          `json:"user_id"`
	LedgerAccountID  string          `json:"account_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	RewardBalance    decimal.Decimal `json:"reward_balance"`
}

// Total is always derived, never persisted separately.
func (a Account) Total() decimal.Decimal {
	return a.AvailableBalance.Add(a.RewardBalance)
}

// Transaction is a wallet ledger row.
type Transaction struct {
	ID          string            `json:"id"`
	SenderID    string            `json:"sender_id"`
	ReceiverID  string            `json:"receiver_id,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Type        TxType            `json:"type"`
	Status      TxStatus          `json:"status"`
	Memo        string            `json:"memo"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`

	// Counterparty handles resolved by the backing store's read queries.
	// Not persisted on the row itself.
	SenderHandle   string `json:"sender_handle,omitempty"`
	ReceiverHandle string `json:"receiver_handle,omitempty"`
}

// IsPendingDeposit reports whether the row is an unconfirmed deposit intent.
func (t Transaction) IsPendingDeposit() bool {
	return t.Type == TxDeposit && t.Status == StatusPending
}

// LedgerEntry is a transaction formatted for the consuming view: direction,
// counterparty and human description resolved.
type LedgerEntry struct {
	ID          string          `json:"id"`
	Direction   string          `json:"direction"` // "sent" or "received"
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Status      TxStatus        `json:"status"`
	Memo        string          `json:"memo"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// DepositInstructions tells the user how to fund a pending ledger deposit:
// send Amount to TargetAccount with exactly Memo attached. The memo is the
// only correlation mechanism, since the external network has no notion of
// platform identity.
type DepositInstructions struct {
	TargetAccount   string          `json:"target_account"`
	LedgerAccountID string          `json:"account_id,omitempty"`
	Memo            string          `json:"memo"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionID   string          `json:"transaction_id"`
	Timestamp       time.Time       `json:"timestamp"`
}

// TransferResult reports a completed or initiated transfer.
type TransferResult struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	ReceiverID    string          `json:"receiver_id,omitempty"`
	Destination   string          `json:"destination,omitempty"`
	Memo          string          `json:"memo,omitempty"`
}

// DepositHandle reports an initiated deposit awaiting settlement.
type DepositHandle struct {
	TransactionID string               `json:"transaction_id"`
	Amount        decimal.Decimal      `json:"amount"`
	CorrelationID string               `json:"correlation_id,omitempty"`
	RedirectURL   string               `json:"redirect_url,omitempty"`
	Instructions  *DepositInstructions `json:"instructions,omitempty"`
}

// ConfirmResult reports a deposit confirmation poll.
type ConfirmResult struct {
	Settled    bool            `json:"settled"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Message    string          `json:"message,omitempty"`
}

// PlatformBalance is the treasury account's position on the ledger network.
type PlatformBalance struct {
	Account   string          `json:"account"`
	Available decimal.Decimal `json:"available"`
	Reward    decimal.Decimal `json:"reward"`
}
