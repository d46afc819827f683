// Package balance maintains the cached wallet view: current balances, the
// recent transaction window and pending deposits.
package balance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/metrics"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

// RecentWindow is how many ledger rows the cached view holds.
const RecentWindow = 20

// Snapshot is one consistent read of the cached wallet state. Balances are
// advisory; the backing store re-validates them when money moves.
type Snapshot struct {
	Account         wallet.Account       `json:"account"`
	Entries         []wallet.LedgerEntry `json:"transactions"`
	PendingDeposits []wallet.Transaction `json:"pending_deposits"`
	Revision        uint64               `json:"revision"`
	RefreshedAt     time.Time            `json:"refreshed_at"`
}

// Service caches one user's wallet state and refreshes it from the backing
// store on demand.
type Service struct {
	store storage.BackingStore
	log   *logger.Logger

	mu       sync.Mutex
	userID   string
	snapshot Snapshot
	loaded   bool

	// Refresh sequencing. nextRev hands out attempt numbers; a reply is
	// applied only if no newer attempt already landed.
	nextRev    uint64
	appliedRev uint64
	inFlight   bool
	pending    bool
}

func NewService(store storage.BackingStore, userID string, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("balance")
	}
	return &Service{store: store, userID: userID, log: log}
}

// UserID returns the user this cache belongs to.
func (s *Service) UserID() string {
	return s.userID
}

// Snapshot returns the last applied wallet state. The boolean is false
// until the first successful refresh.
func (s *Service) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.loaded
}

// Refresh fetches balances, the recent ledger window and pending deposits,
// then applies them to the cache. A reply that lost the race to a newer
// refresh is discarded. On failure the previous snapshot stays intact and
// the error is retryable.
func (s *Service) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	s.nextRev++
	rev := s.nextRev
	s.mu.Unlock()

	start := time.Now()
	snap, err := s.fetch(ctx)
	if err != nil {
		metrics.RecordRefresh("error", time.Since(start))
		return Snapshot{}, errors.DataUnavailable("wallet refresh failed", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if rev < s.appliedRev {
		// A newer refresh already landed; this reply is stale.
		metrics.RecordRefresh("stale", time.Since(start))
		return s.snapshot, nil
	}
	snap.Revision = rev
	snap.RefreshedAt = time.Now().UTC()
	s.snapshot = snap
	s.appliedRev = rev
	s.loaded = true
	metrics.RecordRefresh("applied", time.Since(start))
	return snap, nil
}

// Trigger requests a refresh without waiting for it. Triggers arriving
// while a refresh is in flight coalesce into at most one follow-up, so a
// burst of change events costs at most two queries.
func (s *Service) Trigger(ctx context.Context) {
	s.mu.Lock()
	if s.inFlight {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.mu.Unlock()

	go s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	for {
		if _, err := s.Refresh(ctx); err != nil {
			s.log.WithError(err).Warnf("background refresh failed for %s", s.userID)
		}

		s.mu.Lock()
		if !s.pending || ctx.Err() != nil {
			s.inFlight = false
			s.mu.Unlock()
			return
		}
		s.pending = false
		s.mu.Unlock()
	}
}

func (s *Service) fetch(ctx context.Context) (Snapshot, error) {
	account, err := s.store.GetAccount(ctx, s.userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("account: %w", err)
	}

	txs, err := s.store.ListRecentTransactions(ctx, s.userID, RecentWindow)
	if err != nil {
		return Snapshot{}, fmt.Errorf("transactions: %w", err)
	}

	pending, err := s.store.ListPendingDeposits(ctx, s.userID)
	if err != nil {
		return Snapshot{}, fmt.Errorf("pending deposits: %w", err)
	}

	entries := make([]wallet.LedgerEntry, 0, len(txs))
	for _, tx := range txs {
		entries = append(entries, FormatEntry(tx, s.userID))
	}

	return Snapshot{
		Account:         account,
		Entries:         entries,
		PendingDeposits: pending,
	}, nil
}

// FormatEntry renders a ledger row for the consuming view, resolving the
// direction and human description relative to the viewing user.
func FormatEntry(tx wallet.Transaction, userID string) wallet.LedgerEntry {
	sent := tx.SenderID == userID
	direction := "received"
	if sent {
		direction = "sent"
	}
	return wallet.LedgerEntry{
		ID:          tx.ID,
		Direction:   direction,
		Amount:      tx.Amount,
		Fee:         tx.Fee,
		Status:      tx.Status,
		Memo:        tx.Memo,
		Description: describe(tx, sent),
		CreatedAt:   tx.CreatedAt,
	}
}

func describe(tx wallet.Transaction, sent bool) string {
	switch tx.Type {
	case wallet.TxTransfer:
		if sent {
			return fmt.Sprintf("Transfer to @%s", counterparty(tx.ReceiverHandle))
		}
		return fmt.Sprintf("Transfer from @%s", counterparty(tx.SenderHandle))
	case wallet.TxDeposit:
		return "Wallet deposit"
	case wallet.TxWithdrawal:
		return "Withdrawal request"
	case wallet.TxReward:
		if sent {
			return "Reward sent to creator"
		}
		return "Reward received from viewer"
	default:
		if tx.Description != "" {
			return tx.Description
		}
		return "Transaction"
	}
}

func counterparty(handle string) string {
	if handle == "" {
		return "unknown"
	}
	return handle
}
