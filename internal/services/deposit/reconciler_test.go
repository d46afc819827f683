package deposit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	walleterr "github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/gateway"
	"github.com/blurttok/wallet_layer/internal/services/balance"
	"github.com/blurttok/wallet_layer/internal/storage/memory"
)

func newReconciler(t *testing.T) (*Reconciler, *memory.Store, domid.Identity) {
	t.Helper()

	store := memory.New()
	store.AddUser(
		domid.Identity{Handle: "alice", DisplayName: "Alice Jones"},
		wallet.Account{LedgerAccountID: "alice-chain", AvailableBalance: decimal.NewFromInt(100)},
	)
	alice, _ := store.GetByHandle(context.Background(), "alice")

	cache := balance.NewService(store, alice.AccountID, nil)
	r := NewReconciler(store, gateway.NewSimulator(), cache, alice, "", nil)
	return r, store, alice
}

func TestInitiateFiatDepositRecordsPendingRow(t *testing.T) {
	r, store, alice := newReconciler(t)

	handle, err := r.InitiateFiatDeposit(context.Background(), decimal.NewFromInt(25), "alice@example.com")
	if err != nil {
		t.Fatalf("InitiateFiatDeposit: %v", err)
	}
	if handle.RedirectURL == "" {
		t.Fatalf("expected a gateway redirect URL")
	}
	if handle.CorrelationID == "" {
		t.Fatalf("expected a gateway correlation id")
	}

	pending, err := store.ListPendingDeposits(context.Background(), alice.AccountID)
	if err != nil {
		t.Fatalf("ListPendingDeposits: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending deposit, got %d", len(pending))
	}
	if pending[0].Metadata["gateway_reference"] != handle.CorrelationID {
		t.Fatalf("pending row must carry the gateway reference")
	}
}

func TestInitiateLedgerDepositIssuesInstructions(t *testing.T) {
	r, _, alice := newReconciler(t)

	handle, err := r.InitiateLedgerDeposit(context.Background(), decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("InitiateLedgerDeposit: %v", err)
	}
	instr := handle.Instructions
	if instr == nil {
		t.Fatalf("ledger deposit must carry funding instructions")
	}
	if instr.TargetAccount != DefaultTreasuryAccount {
		t.Fatalf("expected treasury target, got %q", instr.TargetAccount)
	}
	if instr.LedgerAccountID != alice.AccountID {
		t.Fatalf("instructions must name the depositing account")
	}
	if instr.Memo == "" {
		t.Fatalf("instructions must carry the correlation memo")
	}
	if !instr.Amount.Equal(decimal.NewFromInt(40)) {
		t.Fatalf("expected amount 40, got %s", instr.Amount)
	}
}

func TestConfirmDepositLifecycle(t *testing.T) {
	r, store, alice := newReconciler(t)

	handle, err := r.InitiateLedgerDeposit(context.Background(), decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("InitiateLedgerDeposit: %v", err)
	}

	// Nothing on chain yet: retryable, balance untouched.
	_, err = r.ConfirmDeposit(context.Background(), handle.TransactionID)
	if walleterr.CodeOf(err) != walleterr.CodeSettlementPending {
		t.Fatalf("expected settlement-pending, got %v", err)
	}
	if !walleterr.IsRetryable(err) {
		t.Fatalf("settlement-pending must be retryable")
	}
	acct, _ := store.GetAccount(context.Background(), alice.AccountID)
	if !acct.AvailableBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("unsettled confirm must not move funds, balance %s", acct.AvailableBalance)
	}

	// Settlement arrives; confirmation credits exactly once.
	store.RecordSettlement(handle.Instructions.Memo, DefaultTreasuryAccount, decimal.NewFromInt(40))
	res, err := r.ConfirmDeposit(context.Background(), handle.TransactionID)
	if err != nil {
		t.Fatalf("ConfirmDeposit: %v", err)
	}
	if !res.Settled {
		t.Fatalf("expected settled result")
	}
	if !res.NewBalance.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("expected balance 140, got %s", res.NewBalance)
	}

	// Replay is idempotent: same state, no double credit.
	res, err = r.ConfirmDeposit(context.Background(), handle.TransactionID)
	if err != nil {
		t.Fatalf("replayed ConfirmDeposit: %v", err)
	}
	if !res.NewBalance.Equal(decimal.NewFromInt(140)) {
		t.Fatalf("replay must not credit again, balance %s", res.NewBalance)
	}
}

func TestConfirmDepositMismatchedSettlement(t *testing.T) {
	r, store, _ := newReconciler(t)

	handle, err := r.InitiateLedgerDeposit(context.Background(), decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("InitiateLedgerDeposit: %v", err)
	}

	// Settlement exists but for the wrong amount.
	store.RecordSettlement(handle.Instructions.Memo, DefaultTreasuryAccount, decimal.NewFromInt(39))
	_, err = r.ConfirmDeposit(context.Background(), handle.TransactionID)
	if walleterr.CodeOf(err) != walleterr.CodeSettlementBroken {
		t.Fatalf("expected settlement-mismatch, got %v", err)
	}
	if walleterr.IsRetryable(err) {
		t.Fatalf("settlement-mismatch is fatal for the handle")
	}
}

func TestConfirmDepositUnknownTransaction(t *testing.T) {
	r, _, _ := newReconciler(t)

	_, err := r.ConfirmDeposit(context.Background(), "no-such-tx")
	if walleterr.CodeOf(err) != walleterr.CodeNotFound {
		t.Fatalf("expected not-found, got %v", err)
	}
}

func TestPollerSettlesPendingDeposit(t *testing.T) {
	r, store, alice := newReconciler(t)

	handle, err := r.InitiateLedgerDeposit(context.Background(), decimal.NewFromInt(40))
	if err != nil {
		t.Fatalf("InitiateLedgerDeposit: %v", err)
	}
	store.RecordSettlement(handle.Instructions.Memo, DefaultTreasuryAccount, decimal.NewFromInt(40))

	p := NewConfirmationPoller(store, r, alice.AccountID, 10*time.Millisecond, nil)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		acct, _ := store.GetAccount(context.Background(), alice.AccountID)
		if acct.AvailableBalance.Equal(decimal.NewFromInt(140)) {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("poller never settled the deposit, balance %s", acct.AvailableBalance)
		case <-time.After(10 * time.Millisecond):
		}
	}
}
