package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	walleterr "github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/internal/storage/memory"
)

func seedUser(store *memory.Store, handle string, available int64) domid.Identity {
	id := domid.Identity{Handle: handle, DisplayName: handle}
	store.AddUser(id, wallet.Account{AvailableBalance: decimal.NewFromInt(available)})
	// AddUser assigns the account id.
	got, _ := store.GetByHandle(context.Background(), handle)
	return got
}

func TestRefreshPopulatesSnapshot(t *testing.T) {
	store := memory.New()
	alice := seedUser(store, "alice", 100)
	bob := seedUser(store, "bob", 50)

	_, err := store.TransferFunds(context.Background(), storage.TransferFundsParams{
		SenderHandle:   "alice",
		ReceiverHandle: "bob",
		Amount:         decimal.NewFromInt(10),
		Memo:           "TRANSFER_abc123",
	})
	if err != nil {
		t.Fatalf("TransferFunds: %v", err)
	}

	svc := NewService(store, alice.AccountID, nil)
	snap, err := svc.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if !snap.Account.AvailableBalance.Equal(decimal.NewFromInt(90)) {
		t.Fatalf("expected balance 90, got %s", snap.Account.AvailableBalance)
	}
	if len(snap.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap.Entries))
	}
	entry := snap.Entries[0]
	if entry.Direction != "sent" {
		t.Fatalf("expected sent, got %q", entry.Direction)
	}
	if entry.Description != "Transfer to @bob" {
		t.Fatalf("unexpected description %q", entry.Description)
	}

	recv := NewService(store, bob.AccountID, nil)
	snap, err = recv.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if snap.Entries[0].Description != "Transfer from @alice" {
		t.Fatalf("unexpected description %q", snap.Entries[0].Description)
	}
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	store := memory.New()
	alice := seedUser(store, "alice", 100)

	fake := &flakyStore{BackingStore: store}
	svc := NewService(fake, alice.AccountID, nil)

	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	fake.fail.Store(true)
	_, err := svc.Refresh(context.Background())
	if walleterr.CodeOf(err) != walleterr.CodeDataUnavailable {
		t.Fatalf("expected data-unavailable, got %v", err)
	}
	if !walleterr.IsRetryable(err) {
		t.Fatalf("refresh failures must be retryable")
	}

	snap, ok := svc.Snapshot()
	if !ok {
		t.Fatalf("previous snapshot must survive a failed refresh")
	}
	if !snap.Account.AvailableBalance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("expected preserved balance 100, got %s", snap.Account.AvailableBalance)
	}
}

func TestStaleRefreshReplyIsDiscarded(t *testing.T) {
	store := memory.New()
	alice := seedUser(store, "alice", 100)

	gate := &gatedStore{BackingStore: store, release: make(chan struct{})}
	svc := NewService(gate, alice.AccountID, nil)

	// First refresh blocks inside the store read.
	var wg sync.WaitGroup
	wg.Add(1)
	gate.block.Store(true)
	go func() {
		defer wg.Done()
		svc.Refresh(context.Background())
	}()

	// Wait for the slow refresh to take its revision and enter the store.
	<-gate.entered()

	// A second refresh starts later and completes first.
	gate.block.Store(false)
	if _, err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	snap, _ := svc.Snapshot()
	winner := snap.Revision

	// Release the slow refresh; its reply must not overwrite the newer one.
	close(gate.release)
	wg.Wait()

	snap, _ = svc.Snapshot()
	if snap.Revision != winner {
		t.Fatalf("stale reply overwrote revision %d with %d", winner, snap.Revision)
	}
}

func TestTriggerCoalescesBursts(t *testing.T) {
	store := memory.New()
	alice := seedUser(store, "alice", 100)

	counting := &countingStore{BackingStore: store}
	gate := &gatedStore{BackingStore: counting, release: make(chan struct{})}
	svc := NewService(gate, alice.AccountID, nil)

	// First trigger enters the store and parks there.
	gate.block.Store(true)
	svc.Trigger(context.Background())
	<-gate.entered()

	// The rest of the burst arrives while the refresh is in flight.
	for i := 0; i < 9; i++ {
		svc.Trigger(context.Background())
	}
	gate.block.Store(false)
	close(gate.release)

	deadline := time.After(2 * time.Second)
	for {
		if _, ok := svc.Snapshot(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("trigger never produced a snapshot")
		case <-time.After(5 * time.Millisecond):
		}
	}
	// Let the coalesced follow-up drain.
	time.Sleep(50 * time.Millisecond)

	if n := counting.calls.Load(); n > 2 {
		t.Fatalf("expected at most 2 refreshes for a burst, got %d", n)
	}
}

func TestDescribeFallsBackToRowDescription(t *testing.T) {
	tx := wallet.Transaction{
		Type:        wallet.TxBlockchain,
		Description: "External transfer to chain-acct",
	}
	entry := FormatEntry(tx, "user-1")
	if entry.Description != "External transfer to chain-acct" {
		t.Fatalf("unexpected description %q", entry.Description)
	}

	entry = FormatEntry(wallet.Transaction{Type: wallet.TxBlockchain}, "user-1")
	if entry.Description != "Transaction" {
		t.Fatalf("unexpected fallback %q", entry.Description)
	}
}

// flakyStore fails every read when fail is set.
type flakyStore struct {
	storage.BackingStore
	fail atomic.Bool
}

func (f *flakyStore) GetAccount(ctx context.Context, userID string) (wallet.Account, error) {
	if f.fail.Load() {
		return wallet.Account{}, errors.New("store offline")
	}
	return f.BackingStore.GetAccount(ctx, userID)
}

// gatedStore blocks GetAccount until release is closed while block is set.
type gatedStore struct {
	storage.BackingStore
	block    atomic.Bool
	release  chan struct{}
	enterMu  sync.Mutex
	enterCh  chan struct{}
}

func (g *gatedStore) entered() <-chan struct{} {
	g.enterMu.Lock()
	defer g.enterMu.Unlock()
	if g.enterCh == nil {
		g.enterCh = make(chan struct{}, 1)
	}
	return g.enterCh
}

func (g *gatedStore) GetAccount(ctx context.Context, userID string) (wallet.Account, error) {
	if g.block.Load() {
		g.enterMu.Lock()
		if g.enterCh == nil {
			g.enterCh = make(chan struct{}, 1)
		}
		select {
		case g.enterCh <- struct{}{}:
		default:
		}
		g.enterMu.Unlock()
		<-g.release
	}
	return g.BackingStore.GetAccount(ctx, userID)
}

// countingStore counts full refresh cycles by counting GetAccount calls.
type countingStore struct {
	storage.BackingStore
	calls atomic.Int64
}

func (c *countingStore) GetAccount(ctx context.Context, userID string) (wallet.Account, error) {
	c.calls.Add(1)
	return c.BackingStore.GetAccount(ctx, userID)
}
