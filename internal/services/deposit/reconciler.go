// Package deposit manages inbound funding: fiat gateway sessions, direct
// ledger deposits and the confirmation handshake with the backing store.
package deposit

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/metrics"
	"github.com/blurttok/wallet_layer/internal/services/balance"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

// DefaultTreasuryAccount receives direct ledger deposits; the memo on the
// network transfer is the only link back to the pending row.
const DefaultTreasuryAccount = "blurttok.treasury"

// Reconciler initiates deposits for one user and confirms their settlement.
type Reconciler struct {
	store    storage.BackingStore
	gateway  storage.PaymentGateway
	cache    *balance.Service
	user     domid.Identity
	treasury string
	log      *logger.Logger
}

func NewReconciler(
	store storage.BackingStore,
	gateway storage.PaymentGateway,
	cache *balance.Service,
	user domid.Identity,
	treasury string,
	log *logger.Logger,
) *Reconciler {
	if treasury == "" {
		treasury = DefaultTreasuryAccount
	}
	if log == nil {
		log = logger.NewDefault("deposit")
	}
	return &Reconciler{
		store:    store,
		gateway:  gateway,
		cache:    cache,
		user:     user,
		treasury: treasury,
		log:      log,
	}
}

// InitiateFiatDeposit opens a hosted payment session and records the intent
// as a pending deposit row. The gateway confirms settlement out of band.
func (r *Reconciler) InitiateFiatDeposit(ctx context.Context, amount decimal.Decimal, contact string) (wallet.DepositHandle, error) {
	if r.user.AccountID == "" {
		return wallet.DepositHandle{}, errors.Validation("not authenticated")
	}
	if !amount.IsPositive() {
		return wallet.DepositHandle{}, errors.Validation("amount must be greater than 0")
	}
	if contact == "" {
		return wallet.DepositHandle{}, errors.Validation("contact email is required")
	}

	session, err := r.gateway.InitializePayment(ctx, amount, contact)
	if err != nil {
		return wallet.DepositHandle{}, errors.DataUnavailable("payment gateway unavailable", err)
	}

	row, err := r.store.CreateTransaction(ctx, wallet.Transaction{
		SenderID: r.user.AccountID,
		Amount:   amount,
		Type:     wallet.TxDeposit,
		Status:   wallet.StatusPending,
		Memo:     wallet.NewFiatDepositMemo(),
		Metadata: map[string]string{"gateway_reference": session.CorrelationID},
	})
	if err != nil {
		return wallet.DepositHandle{}, errors.DataUnavailable("could not record deposit", err)
	}

	r.log.Info("fiat deposit initiated",
		"transaction_id", row.ID,
		"gateway_reference", session.CorrelationID,
		"amount", wallet.FormatAmount(amount))

	return wallet.DepositHandle{
		TransactionID: row.ID,
		Amount:        amount,
		CorrelationID: session.CorrelationID,
		RedirectURL:   session.RedirectURL,
	}, nil
}

// InitiateLedgerDeposit records a deposit the user will fund by sending
// coins to the treasury account with a correlation memo. The memo must be
// unique among the user's pending rows or two deposits could claim one
// settlement.
func (r *Reconciler) InitiateLedgerDeposit(ctx context.Context, amount decimal.Decimal) (wallet.DepositHandle, error) {
	if r.user.AccountID == "" {
		return wallet.DepositHandle{}, errors.Validation("not authenticated")
	}
	if !amount.IsPositive() {
		return wallet.DepositHandle{}, errors.Validation("amount must be greater than 0")
	}

	memo := wallet.NewChainDepositMemo(time.Now())
	exists, err := r.store.HasPendingMemo(ctx, r.user.AccountID, memo)
	if err != nil {
		return wallet.DepositHandle{}, errors.DataUnavailable("could not verify memo uniqueness", err)
	}
	if exists {
		return wallet.DepositHandle{}, errors.Validation("a deposit with this memo is already pending")
	}

	row, err := r.store.CreateTransaction(ctx, wallet.Transaction{
		SenderID: r.user.AccountID,
		Amount:   amount,
		Type:     wallet.TxDeposit,
		Status:   wallet.StatusPending,
		Memo:     memo,
	})
	if err != nil {
		return wallet.DepositHandle{}, errors.DataUnavailable("could not record deposit", err)
	}

	r.log.Info("ledger deposit initiated",
		"transaction_id", row.ID,
		"memo", memo,
		"amount", wallet.FormatAmount(amount))

	return wallet.DepositHandle{
		TransactionID: row.ID,
		Amount:        amount,
		Instructions: &wallet.DepositInstructions{
			TargetAccount:   r.treasury,
			LedgerAccountID: r.user.AccountID,
			Memo:            memo,
			Amount:          amount,
			TransactionID:   row.ID,
			Timestamp:       row.CreatedAt,
		},
	}, nil
}

// ConfirmDeposit asks the backing store whether a pending deposit has
// settled. Not-yet-settled is a retryable condition, not a failure; a
// mismatched settlement is fatal for that deposit handle.
func (r *Reconciler) ConfirmDeposit(ctx context.Context, transactionID string) (wallet.ConfirmResult, error) {
	if transactionID == "" {
		return wallet.ConfirmResult{}, errors.Validation("transaction id is required")
	}

	result, err := r.store.ConfirmPendingDeposit(ctx, transactionID)
	if err != nil {
		metrics.RecordDepositConfirmation("error")
		return wallet.ConfirmResult{}, errors.DataUnavailable("deposit confirmation failed", err)
	}

	if !result.Success {
		switch result.Reason {
		case "not yet settled":
			metrics.RecordDepositConfirmation("pending")
			return wallet.ConfirmResult{}, errors.SettlementPending(transactionID)
		case "memo or amount mismatch":
			metrics.RecordDepositConfirmation("mismatch")
			return wallet.ConfirmResult{}, errors.SettlementMismatch(result.Reason)
		case "transaction not found":
			metrics.RecordDepositConfirmation("not_found")
			return wallet.ConfirmResult{}, errors.NotFound("deposit %s not found", transactionID)
		default:
			metrics.RecordDepositConfirmation("rejected")
			return wallet.ConfirmResult{}, errors.Validation("%s", result.Reason)
		}
	}

	metrics.RecordDepositConfirmation("confirmed")
	r.log.Info("deposit confirmed",
		"transaction_id", transactionID,
		"new_balance", wallet.FormatAmount(result.NewBalance))
	r.cache.Trigger(context.WithoutCancel(ctx))

	return wallet.ConfirmResult{
		Settled:    true,
		NewBalance: result.NewBalance,
		Message:    result.Message,
	}, nil
}
