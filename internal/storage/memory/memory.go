// Package memory is an in-memory implementation of the storage interfaces.
// It is safe for concurrent use and is primarily intended for tests and local
// development; the authoritative procedures mirror the backing store's
// stored-procedure semantics, including idempotent deposit confirmation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/storage"
)

// TreasuryAccount is the platform's settlement account on the external
// ledger; direct deposits are sent here with a correlation memo.
const TreasuryAccount = "blurttok.treasury"

type settlement struct {
	account string
	amount  decimal.Decimal
}

// Store holds wallet state in process.
type Store struct {
	mu           sync.RWMutex
	identities   map[string]identity.Identity // by account id
	accounts     map[string]wallet.Account    // by user id
	transactions map[string]wallet.Transaction
	settlements  map[string]settlement // by memo
}

var _ storage.BackingStore = (*Store)(nil)
var _ storage.UserDirectory = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		identities:   make(map[string]identity.Identity),
		accounts:     make(map[string]wallet.Account),
		transactions: make(map[string]wallet.Transaction),
		settlements:  make(map[string]settlement),
	}
}

// AddUser registers a directory identity with a provisioned ledger account.
func (s *Store) AddUser(id identity.Identity, acct wallet.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.AccountID == "" {
		id.AccountID = uuid.NewString()
	}
	acct.UserID = id.AccountID
	s.identities[id.AccountID] = id
	s.accounts[id.AccountID] = acct
}

// AddIdentity registers a directory identity without a ledger account row.
// Such users can be resolved but cannot receive transfers.
func (s *Store) AddIdentity(id identity.Identity) identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id.AccountID == "" {
		id.AccountID = uuid.NewString()
	}
	s.identities[id.AccountID] = id
	return id
}

// RecordSettlement registers an on-chain settlement observed for a memo.
// Tests use this to simulate the external network accepting a deposit.
func (s *Store) RecordSettlement(memo, account string, amount decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[memo] = settlement{account: account, amount: amount}
}

// BackingStore implementation ------------------------------------------------

func (s *Store) GetAccount(_ context.Context, userID string) (wallet.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return wallet.Account{}, storage.ErrNotFound
	}
	return acct, nil
}

func (s *Store) ListRecentTransactions(_ context.Context, userID string, limit int) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []wallet.Transaction
	for _, tx := range s.transactions {
		if tx.SenderID == userID || tx.ReceiverID == userID {
			result = append(result, s.annotateLocked(cloneTx(tx)))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListPendingDeposits(_ context.Context, userID string) ([]wallet.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []wallet.Transaction
	for _, tx := range s.transactions {
		if tx.SenderID == userID && tx.IsPendingDeposit() {
			result = append(result, s.annotateLocked(cloneTx(tx)))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) CreateTransaction(_ context.Context, tx wallet.Transaction) (wallet.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	} else if _, exists := s.transactions[tx.ID]; exists {
		return wallet.Transaction{}, fmt.Errorf("transaction %s already exists", tx.ID)
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	tx.Metadata = cloneMap(tx.Metadata)

	s.transactions[tx.ID] = tx
	return cloneTx(tx), nil
}

func (s *Store) UpdateTransactionStatus(_ context.Context, id string, status wallet.TxStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return storage.ErrNotFound
	}
	if tx.Status == wallet.StatusConfirmed {
		return fmt.Errorf("transaction %s is confirmed and immutable", id)
	}
	tx.Status = status
	s.transactions[id] = tx
	return nil
}

func (s *Store) HasPendingMemo(_ context.Context, userID, memo string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tx := range s.transactions {
		if tx.SenderID == userID && tx.Status == wallet.StatusPending && tx.Memo == memo {
			return true, nil
		}
	}
	return false, nil
}

// TransferFunds applies the authoritative internal transfer: it re-validates
// the sender balance against current state, applies the peer-transfer fee,
// and moves funds in one critical section.
func (s *Store) TransferFunds(_ context.Context, params storage.TransferFundsParams) (storage.TransferFundsResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sender, ok := s.identityByHandleLocked(params.SenderHandle)
	if !ok {
		return rejected("sender not found"), nil
	}
	receiver, ok := s.identityByHandleLocked(params.ReceiverHandle)
	if !ok {
		return rejected("receiver not found"), nil
	}
	senderAcct, ok := s.accounts[sender.AccountID]
	if !ok {
		return rejected("sender has no ledger account"), nil
	}
	receiverAcct, ok := s.accounts[receiver.AccountID]
	if !ok {
		return rejected("receiver has no ledger account"), nil
	}
	if !params.Amount.IsPositive() {
		return rejected("amount must be greater than 0"), nil
	}
	if senderAcct.AvailableBalance.LessThan(params.Amount) {
		return rejected("insufficient funds"), nil
	}

	breakdown := wallet.CalculateFee(params.Amount, wallet.PeerTransferSchedule)

	senderAcct.AvailableBalance = senderAcct.AvailableBalance.Sub(params.Amount)
	receiverAcct.AvailableBalance = receiverAcct.AvailableBalance.Add(breakdown.NetAmount)
	s.accounts[sender.AccountID] = senderAcct
	s.accounts[receiver.AccountID] = receiverAcct

	tx := wallet.Transaction{
		ID:          uuid.NewString(),
		SenderID:    sender.AccountID,
		ReceiverID:  receiver.AccountID,
		Amount:      params.Amount,
		Fee:         breakdown.Fee,
		Type:        wallet.TxTransfer,
		Status:      wallet.StatusConfirmed,
		Memo:        params.Memo,
		Description: params.Description,
		CreatedAt:   time.Now().UTC(),
	}
	s.transactions[tx.ID] = tx

	return storage.TransferFundsResult{
		Success:       true,
		TransactionID: tx.ID,
		Amount:        params.Amount,
		Fee:           breakdown.Fee,
		NetAmount:     breakdown.NetAmount,
	}, nil
}

// ConfirmPendingDeposit polls the settlement registry for the transaction's
// memo. Confirming twice is a no-op returning the settled state.
func (s *Store) ConfirmPendingDeposit(_ context.Context, transactionID string) (storage.ConfirmDepositResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[transactionID]
	if !ok {
		return storage.ConfirmDepositResult{Reason: "transaction not found"}, nil
	}
	if tx.Type != wallet.TxDeposit {
		return storage.ConfirmDepositResult{Reason: "not a deposit transaction"}, nil
	}

	acct := s.accounts[tx.SenderID]

	if tx.Status == wallet.StatusConfirmed {
		return storage.ConfirmDepositResult{
			Success:    true,
			NewBalance: acct.AvailableBalance,
			Message:    "deposit already confirmed",
		}, nil
	}

	settled, ok := s.settlements[tx.Memo]
	if !ok {
		return storage.ConfirmDepositResult{Reason: "not yet settled"}, nil
	}
	if settled.account != TreasuryAccount || !settled.amount.Equal(tx.Amount) {
		return storage.ConfirmDepositResult{Reason: "memo or amount mismatch"}, nil
	}

	acct.AvailableBalance = acct.AvailableBalance.Add(tx.Amount)
	s.accounts[tx.SenderID] = acct
	tx.Status = wallet.StatusConfirmed
	s.transactions[tx.ID] = tx

	return storage.ConfirmDepositResult{
		Success:    true,
		NewBalance: acct.AvailableBalance,
		Message:    "deposit confirmed",
	}, nil
}

// UserDirectory implementation -----------------------------------------------

func (s *Store) GetByHandle(_ context.Context, handle string) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id, ok := s.identityByHandleLocked(handle); ok {
		return id, nil
	}
	return identity.Identity{}, storage.ErrNotFound
}

func (s *Store) GetByDisplayName(_ context.Context, name string) (identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.sortedIdentitiesLocked() {
		if strings.EqualFold(id.DisplayName, name) {
			return id, nil
		}
	}
	return identity.Identity{}, storage.ErrNotFound
}

func (s *Store) FindByDisplayNameFragment(_ context.Context, fragment string, limit int) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLocked(limit, func(id identity.Identity) bool {
		return containsFold(id.DisplayName, fragment)
	}), nil
}

func (s *Store) FindByHandleFragment(_ context.Context, fragment string, limit int) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLocked(limit, func(id identity.Identity) bool {
		return containsFold(id.Handle, fragment)
	}), nil
}

func (s *Store) Search(_ context.Context, prefix string, excludeHandle string, limit int) ([]identity.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLocked(limit, func(id identity.Identity) bool {
		if strings.EqualFold(id.Handle, excludeHandle) {
			return false
		}
		return hasPrefixFold(id.Handle, prefix) || hasPrefixFold(id.DisplayName, prefix)
	}), nil
}

// helpers ----------------------------------------------------------------------

func (s *Store) identityByHandleLocked(handle string) (identity.Identity, bool) {
	for _, id := range s.sortedIdentitiesLocked() {
		if strings.EqualFold(id.Handle, handle) {
			return id, true
		}
	}
	return identity.Identity{}, false
}

// sortedIdentitiesLocked returns identities in a stable order so that
// first-row semantics are deterministic.
func (s *Store) sortedIdentitiesLocked() []identity.Identity {
	ids := make([]identity.Identity, 0, len(s.identities))
	for _, id := range s.identities {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Handle < ids[j].Handle })
	return ids
}

func (s *Store) filterLocked(limit int, match func(identity.Identity) bool) []identity.Identity {
	var result []identity.Identity
	for _, id := range s.sortedIdentitiesLocked() {
		if !match(id) {
			continue
		}
		result = append(result, id)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

func (s *Store) annotateLocked(tx wallet.Transaction) wallet.Transaction {
	if id, ok := s.identities[tx.SenderID]; ok {
		tx.SenderHandle = id.Handle
	}
	if id, ok := s.identities[tx.ReceiverID]; ok {
		tx.ReceiverHandle = id.Handle
	}
	return tx
}

func rejected(reason string) storage.TransferFundsResult {
	return storage.TransferFundsResult{Reason: reason}
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func hasPrefixFold(s, prefix string) bool {
	return strings.HasPrefix(strings.ToLower(s), strings.ToLower(prefix))
}

func cloneTx(tx wallet.Transaction) wallet.Transaction {
	tx.Metadata = cloneMap(tx.Metadata)
	return tx
}

func cloneMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
