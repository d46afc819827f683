// Package transfer coordinates value movement: internal peer transfers
// through the backing store and external transfers broadcast to the ledger
// network.
package transfer

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/blurttok/wallet_layer/internal/chain"
	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/metrics"
	"github.com/blurttok/wallet_layer/internal/services/balance"
	"github.com/blurttok/wallet_layer/internal/services/identity"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"

	"github.com/shopspring/decimal"
)

// Coordinator moves funds on behalf of one authenticated user. The cached
// balance is used only to fail obviously bad requests fast; the backing
// store re-validates everything when it executes.
type Coordinator struct {
	store    storage.BackingStore
	resolver *identity.Resolver
	network  storage.LedgerNetwork
	cache    *balance.Service
	user     domid.Identity
	log      *logger.Logger

	internalBusy atomic.Bool
	externalBusy atomic.Bool
}

func NewCoordinator(
	store storage.BackingStore,
	resolver *identity.Resolver,
	network storage.LedgerNetwork,
	cache *balance.Service,
	user domid.Identity,
	log *logger.Logger,
) *Coordinator {
	if log == nil {
		log = logger.NewDefault("transfer")
	}
	return &Coordinator{
		store:    store,
		resolver: resolver,
		network:  network,
		cache:    cache,
		user:     user,
		log:      log,
	}
}

// InternalInProgress reports whether an internal transfer is executing.
func (c *Coordinator) InternalInProgress() bool { return c.internalBusy.Load() }

// ExternalInProgress reports whether an external transfer is executing.
func (c *Coordinator) ExternalInProgress() bool { return c.externalBusy.Load() }

// Status is a point-in-time view of the coordinator's busy flags.
type Status struct {
	SendingInternal bool `json:"sending_internal"`
	SendingExternal bool `json:"sending_external"`
}

// Status snapshots the in-progress flags for UI surfaces.
func (c *Coordinator) Status() Status {
	return Status{
		SendingInternal: c.internalBusy.Load(),
		SendingExternal: c.externalBusy.Load(),
	}
}

// TransferInternal sends funds to another platform user. The recipient must
// be an exact handle match; fuzzy resolution is for display surfaces only.
// memo and description are optional: an empty memo gets a generated token
// and an empty description defaults to "Transfer to @<handle>".
// Precondition failures surface before any store write happens.
func (c *Coordinator) TransferInternal(ctx context.Context, recipient string, amount decimal.Decimal, memo, description string) (wallet.TransferResult, error) {
	if c.user.AccountID == "" {
		return wallet.TransferResult{}, errors.Validation("not authenticated")
	}
	if !c.internalBusy.CompareAndSwap(false, true) {
		return wallet.TransferResult{}, errors.Validation("a transfer is already in progress")
	}
	defer c.internalBusy.Store(false)

	if !amount.IsPositive() {
		return wallet.TransferResult{}, errors.Validation("amount must be greater than 0")
	}
	if snap, ok := c.cache.Snapshot(); ok && snap.Account.AvailableBalance.LessThan(amount) {
		return wallet.TransferResult{}, errors.InsufficientFunds(
			snap.Account.AvailableBalance.String(), amount.String())
	}

	receiver, err := c.resolver.ResolveExact(ctx, recipient)
	if err != nil {
		return wallet.TransferResult{}, err
	}
	if _, err := c.store.GetAccount(ctx, receiver.AccountID); err != nil {
		if err == storage.ErrNotFound {
			return wallet.TransferResult{}, errors.Validation("recipient has no wallet")
		}
		return wallet.TransferResult{}, errors.DataUnavailable("recipient wallet lookup failed", err)
	}
	if receiver.AccountID == c.user.AccountID {
		return wallet.TransferResult{}, errors.Validation("cannot transfer to yourself")
	}

	if memo == "" {
		memo = wallet.NewTransferMemo()
	}
	if description == "" {
		description = "Transfer to @" + receiver.Handle
	}
	result, err := c.store.TransferFunds(ctx, storage.TransferFundsParams{
		SenderHandle:   c.user.Handle,
		ReceiverHandle: receiver.Handle,
		Amount:         amount,
		Memo:           memo,
		Description:    description,
	})
	if err != nil {
		metrics.RecordTransfer("internal", false)
		return wallet.TransferResult{}, errors.DataUnavailable("transfer failed", err)
	}
	if !result.Success {
		metrics.RecordTransfer("internal", false)
		return wallet.TransferResult{}, storeRejection(result.Reason)
	}

	metrics.RecordTransfer("internal", true)
	c.log.Info("internal transfer complete",
		"transaction_id", result.TransactionID,
		"receiver", receiver.Handle,
		"amount", wallet.FormatAmount(result.Amount))
	c.cache.Trigger(context.WithoutCancel(ctx))

	return wallet.TransferResult{
		TransactionID: result.TransactionID,
		Amount:        result.Amount,
		Fee:           result.Fee,
		NetAmount:     result.NetAmount,
		ReceiverID:    receiver.AccountID,
		Memo:          memo,
	}, nil
}

// TransferExternal broadcasts funds to an account on the ledger network.
// A pending ledger row is persisted before the broadcast so an operator can
// reconcile a crash between the two steps; the row's memo is fresh per
// attempt and is never reused for a second broadcast.
func (c *Coordinator) TransferExternal(ctx context.Context, destination string, amount decimal.Decimal, signingSecret string) (wallet.TransferResult, error) {
	if c.user.AccountID == "" {
		return wallet.TransferResult{}, errors.Validation("not authenticated")
	}
	if !c.externalBusy.CompareAndSwap(false, true) {
		return wallet.TransferResult{}, errors.Validation("a withdrawal is already in progress")
	}
	defer c.externalBusy.Store(false)

	destination = strings.TrimSpace(destination)
	if destination == "" {
		return wallet.TransferResult{}, errors.Validation("destination account is required")
	}
	if !chain.ValidateSigningSecret(signingSecret) {
		return wallet.TransferResult{}, errors.InvalidCredential("signing key format is invalid")
	}
	if !amount.IsPositive() {
		return wallet.TransferResult{}, errors.Validation("amount must be greater than 0")
	}

	// The cached balance check is advisory, but the own-account check must
	// hold even before the first refresh, so fall back to the store.
	ownAccount := ""
	if snap, ok := c.cache.Snapshot(); ok {
		if snap.Account.AvailableBalance.LessThan(amount) {
			return wallet.TransferResult{}, errors.InsufficientFunds(
				snap.Account.AvailableBalance.String(), amount.String())
		}
		ownAccount = snap.Account.LedgerAccountID
	} else if acct, err := c.store.GetAccount(ctx, c.user.AccountID); err == nil {
		ownAccount = acct.LedgerAccountID
	}
	if ownAccount != "" && strings.EqualFold(destination, ownAccount) {
		return wallet.TransferResult{}, errors.Validation("destination is your own linked account")
	}

	exists, err := c.network.AccountExists(ctx, destination)
	if err != nil {
		return wallet.TransferResult{}, errors.DataUnavailable("network account lookup failed", err)
	}
	if !exists {
		return wallet.TransferResult{}, errors.NotFound("account %q does not exist on the network", destination)
	}

	memo := wallet.NewExternalTransferMemo()
	row, err := c.store.CreateTransaction(ctx, wallet.Transaction{
		SenderID: c.user.AccountID,
		Amount:   amount,
		Type:     wallet.TxBlockchain,
		Status:   wallet.StatusPending,
		Memo:     memo,
		Metadata: map[string]string{"destination": destination},
	})
	if err != nil {
		return wallet.TransferResult{}, errors.DataUnavailable("could not record withdrawal", err)
	}

	networkTxID, err := c.network.Broadcast(ctx, storage.TransferBroadcast{
		Destination:   destination,
		Amount:        amount,
		Memo:          memo,
		SigningSecret: signingSecret,
	})
	if err != nil {
		metrics.RecordTransfer("external", false)
		if uerr := c.store.UpdateTransactionStatus(ctx, row.ID, wallet.StatusFailed); uerr != nil {
			c.log.WithError(uerr).Errorf("could not mark withdrawal %s failed", row.ID)
		}
		return wallet.TransferResult{}, errors.DataUnavailable("network broadcast failed", err)
	}

	if err := c.store.UpdateTransactionStatus(ctx, row.ID, wallet.StatusConfirmed); err != nil {
		// Funds moved on the network; the row stays pending for the
		// reconciler rather than being retried here.
		c.log.WithError(err).Errorf("withdrawal %s broadcast as %s but not marked confirmed", row.ID, networkTxID)
	}

	metrics.RecordTransfer("external", true)
	c.log.Info("external transfer broadcast",
		"transaction_id", row.ID,
		"network_tx_id", networkTxID,
		"destination", destination,
		"amount", wallet.FormatAmount(amount))
	c.cache.Trigger(context.WithoutCancel(ctx))

	return wallet.TransferResult{
		TransactionID: row.ID,
		Amount:        amount,
		Fee:           decimal.Zero,
		NetAmount:     amount,
		Destination:   destination,
		Memo:          memo,
	}, nil
}

// storeRejection maps the backing store's verbatim rejection reasons onto
// the service error taxonomy.
func storeRejection(reason string) error {
	switch reason {
	case "insufficient funds":
		return &errors.ServiceError{
			Code:       errors.CodeInsufficientFunds,
			Message:    reason,
			HTTPStatus: http.StatusUnprocessableEntity,
		}
	case "sender not found", "receiver not found":
		return errors.NotFound("%s", reason)
	case "":
		return errors.Validation("transfer rejected")
	default:
		return errors.Validation("%s", reason)
	}
}
