package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/storage"
)

func TestUpdateTransactionStatusContract(t *testing.T) {
	store := New()
	store.AddUser(
		identity.Identity{Handle: "alice"},
		wallet.Account{LedgerAccountID: "alice-chain", AvailableBalance: decimal.NewFromInt(10)},
	)
	alice, _ := store.GetByHandle(context.Background(), "alice")

	row, err := store.CreateTransaction(context.Background(), wallet.Transaction{
		SenderID: alice.AccountID,
		Amount:   decimal.NewFromInt(5),
		Type:     wallet.TxBlockchain,
		Status:   wallet.StatusPending,
		Memo:     "BLOCKCHAIN_TRANSFER_abc123",
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if err := store.UpdateTransactionStatus(context.Background(), row.ID, wallet.StatusConfirmed); err != nil {
		t.Fatalf("confirming a pending row: %v", err)
	}

	err = store.UpdateTransactionStatus(context.Background(), row.ID, wallet.StatusFailed)
	if err == nil || !strings.Contains(err.Error(), "immutable") {
		t.Fatalf("expected immutability error for a confirmed row, got %v", err)
	}

	if err := store.UpdateTransactionStatus(context.Background(), "tx-nope", wallet.StatusFailed); err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound for a missing row, got %v", err)
	}
}
