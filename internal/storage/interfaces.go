// Package storage defines the collaborator interfaces the wallet layer
// orchestrates: the backing store with its authoritative procedures, the user
// directory, the external ledger network and the fiat payment gateway.
package storage

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// TransferFundsParams are the arguments to the store's single authoritative
// transfer procedure. The procedure runs as one atomic server-side
// transaction, so no partially-applied transfer is possible.
type TransferFundsParams struct {
	SenderHandle   string
	ReceiverHandle string
	Amount         decimal.Decimal
	Memo           string
	Description    string
}

// TransferFundsResult is the procedure's verbatim outcome. Reason carries the
// store's rejection (re-validated insufficient funds, missing receiver) when
// Success is false.
type TransferFundsResult struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Reason        string          `json:"error,omitempty"`
}

// ConfirmDepositResult is the outcome of the store's settlement-check
// procedure. Confirming an already-settled deposit returns the settled state
// again, never a double credit.
type ConfirmDepositResult struct {
	Success    bool            `json:"success"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Message    string          `json:"message,omitempty"`
	Reason     string          `json:"error,omitempty"`
}

// BackingStore persists accounts and transactions and exposes the two
// authoritative stored procedures.
type BackingStore interface {
	GetAccount(ctx context.Context, userID string) (wallet.Account, error)
	ListRecentTransactions(ctx context.Context, userID string, limit int) ([]wallet.Transaction, error)
	ListPendingDeposits(ctx context.Context, userID string) ([]wallet.Transaction, error)

	CreateTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, id string, status wallet.TxStatus) error
	HasPendingMemo(ctx context.Context, userID, memo string) (bool, error)

	TransferFunds(ctx context.Context, params TransferFundsParams) (TransferFundsResult, error)
	ConfirmPendingDeposit(ctx context.Context, transactionID string) (ConfirmDepositResult, error)
}

// UserDirectory resolves handles and display names and serves prefix search.
// Fragment lookups return rows in store order; the resolver accepts only the
// first.
type UserDirectory interface {
	GetByHandle(ctx context.Context, handle string) (identity.Identity, error)
	GetByDisplayName(ctx context.Context, name string) (identity.Identity, error)
	FindByDisplayNameFragment(ctx context.Context, fragment string, limit int) ([]identity.Identity, error)
	FindByHandleFragment(ctx context.Context, fragment string, limit int) ([]identity.Identity, error)
	Search(ctx context.Context, prefix string, excludeHandle string, limit int) ([]identity.Identity, error)
}

// TransferBroadcast describes a signed value transfer handed to the external
// ledger network. Broadcasting is irreversible.
type TransferBroadcast struct {
	Destination   string
	Amount        decimal.Decimal
	Memo          string
	SigningSecret string
}

// LedgerNetwork is the external distributed-ledger collaborator. Settlement
// is asynchronous with no guaranteed latency bound.
type LedgerNetwork interface {
	Broadcast(ctx context.Context, tx TransferBroadcast) (networkTxID string, err error)
	AccountExists(ctx context.Context, account string) (bool, error)
	AccountBalance(ctx context.Context, account string) (available, reward decimal.Decimal, err error)
}

// PaymentSession is the fiat gateway's handle for a deposit: where to send
// the user and how the gateway will refer to the payment.
type PaymentSession struct {
	CorrelationID string
	RedirectURL   string
}

// PaymentGateway initializes fiat deposits. Settlement is confirmed out of
// band.
type PaymentGateway interface {
	InitializePayment(ctx context.Context, amount decimal.Decimal, contact string) (PaymentSession, error)
}

// ChangeEvent is a push notification about a balance or transaction row.
type ChangeEvent struct {
	Table string
	Event string // INSERT, UPDATE, DELETE
}

// Subscription is a cancellable push channel.
type Subscription interface {
	Close() error
}

// ChangeFeed subscribes to row-level push notifications from the backing
// store, keyed by table and row filter.
type ChangeFeed interface {
	SubscribeBalanceChanges(ctx context.Context, userID string, fn func(ChangeEvent)) (Subscription, error)
	SubscribeTransactionInserts(ctx context.Context, userID string, fn func(ChangeEvent)) (Subscription, error)
}
