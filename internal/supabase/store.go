package supabase

import (
	"context"
	"fmt"
	"strings"

	"github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

const (
	userColumns = "id,username,user_profiles!inner(display_name,avatar_url)"
	txColumns   = "*,sender:sender_id(username),receiver:receiver_id(username)"
)

// Store implements storage.BackingStore and storage.UserDirectory over the
// PostgREST surface. Money movement goes through stored procedures so the
// database stays the single authority on balances.
type Store struct {
	client *Client
	log    *logger.Logger
}

var (
	_ storage.BackingStore  = (*Store)(nil)
	_ storage.UserDirectory = (*Store)(nil)
)

func NewStore(client *Client, log *logger.Logger) *Store {
	if log == nil {
		log = logger.NewDefault("supabase-store")
	}
	return &Store{client: client, log: log}
}

func (s *Store) GetAccount(ctx context.Context, userID string) (wallet.Account, error) {
	var row balanceRow
	err := s.client.From(tableBalances).
		Select("user_id,account_id,available_balance,reward_balance").
		Eq("user_id", userID).
		Single().
		Execute(ctx, &row)
	if err != nil {
		if IsNotFound(err) {
			return wallet.Account{}, storage.ErrNotFound
		}
		return wallet.Account{}, fmt.Errorf("fetch balance for %s: %w", userID, err)
	}
	return row.toDomain(), nil
}

func (s *Store) ListRecentTransactions(ctx context.Context, userID string, limit int) ([]wallet.Transaction, error) {
	var rows []transactionRow
	err := s.client.From(tableTransactions).
		Select(txColumns).
		Or(fmt.Sprintf("sender_id.eq.%s,receiver_id.eq.%s", userID, userID)).
		Order("created_at", false).
		Limit(limit).
		Execute(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list transactions for %s: %w", userID, err)
	}
	out := make([]wallet.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) ListPendingDeposits(ctx context.Context, userID string) ([]wallet.Transaction, error) {
	var rows []transactionRow
	err := s.client.From(tableTransactions).
		Select(txColumns).
		Eq("sender_id", userID).
		Eq("type", string(wallet.TxDeposit)).
		Eq("status", string(wallet.StatusPending)).
		Order("created_at", false).
		Execute(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("list pending deposits for %s: %w", userID, err)
	}
	out := make([]wallet.Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx wallet.Transaction) (wallet.Transaction, error) {
	ins := insertTransaction{
		SenderID:    tx.SenderID,
		ReceiverID:  tx.ReceiverID,
		Amount:      tx.Amount,
		Fee:         tx.Fee,
		Type:        string(tx.Type),
		Status:      string(tx.Status),
		Memo:        tx.Memo,
		Description: tx.Description,
		Metadata:    tx.Metadata,
	}
	var rows []transactionRow
	if err := s.client.From(tableTransactions).Insert(ctx, ins, &rows); err != nil {
		return wallet.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if len(rows) == 0 {
		return wallet.Transaction{}, fmt.Errorf("create transaction: no row returned")
	}
	return rows[0].toDomain(), nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, transactionID string, status wallet.TxStatus) error {
	var updated []transactionRow
	err := s.client.From(tableTransactions).
		Eq("id", transactionID).
		Neq("status", string(wallet.StatusConfirmed)).
		Update(ctx, map[string]string{"status": string(status)}, &updated)
	if err != nil {
		return fmt.Errorf("update transaction %s status: %w", transactionID, err)
	}
	if len(updated) > 0 {
		return nil
	}

	// Zero rows matched: either the transaction does not exist or it is
	// already confirmed and immutable.
	var existing []transactionRow
	err = s.client.From(tableTransactions).
		Select("id,status").
		Eq("id", transactionID).
		Limit(1).
		Execute(ctx, &existing)
	if err != nil {
		return fmt.Errorf("update transaction %s status: %w", transactionID, err)
	}
	if len(existing) == 0 {
		return storage.ErrNotFound
	}
	return fmt.Errorf("transaction %s is confirmed and immutable", transactionID)
}

func (s *Store) HasPendingMemo(ctx context.Context, userID, memo string) (bool, error) {
	var rows []transactionRow
	err := s.client.From(tableTransactions).
		Select("id").
		Eq("sender_id", userID).
		Eq("memo", memo).
		Eq("status", string(wallet.StatusPending)).
		Limit(1).
		Execute(ctx, &rows)
	if err != nil {
		return false, fmt.Errorf("check pending memo: %w", err)
	}
	return len(rows) > 0, nil
}

func (s *Store) TransferFunds(ctx context.Context, params storage.TransferFundsParams) (storage.TransferFundsResult, error) {
	var row transferFundsRow
	err := s.client.RPC(ctx, rpcTransferFunds, transferFundsParams{
		SenderUsername:      params.SenderHandle,
		ReceiverUsername:    params.ReceiverHandle,
		TransferAmount:      params.Amount,
		TransferMemo:        params.Memo,
		TransferDescription: params.Description,
	}, &row)
	if err != nil {
		return storage.TransferFundsResult{}, fmt.Errorf("transfer_funds rpc: %w", err)
	}
	return storage.TransferFundsResult{
		Success:       row.Success,
		TransactionID: row.TransactionID,
		Amount:        row.Amount,
		Fee:           row.Fee,
		NetAmount:     row.NetAmount,
		Reason:        row.Error,
	}, nil
}

func (s *Store) ConfirmPendingDeposit(ctx context.Context, transactionID string) (storage.ConfirmDepositResult, error) {
	var row confirmDepositRow
	err := s.client.RPC(ctx, rpcConfirmDeposit, confirmDepositParams{
		TransactionID: transactionID,
	}, &row)
	if err != nil {
		return storage.ConfirmDepositResult{}, fmt.Errorf("confirm_pending_deposit rpc: %w", err)
	}
	return storage.ConfirmDepositResult{
		Success:    row.Success,
		NewBalance: row.NewBalance,
		Message:    row.Message,
		Reason:     row.Error,
	}, nil
}

// UserDirectory

func (s *Store) GetByHandle(ctx context.Context, handle string) (identity.Identity, error) {
	var row userRow
	err := s.client.From(tableUsers).
		Select(userColumns).
		Eq("username", strings.ToLower(handle)).
		Single().
		Execute(ctx, &row)
	if err != nil {
		if IsNotFound(err) {
			return identity.Identity{}, storage.ErrNotFound
		}
		return identity.Identity{}, fmt.Errorf("get user by handle: %w", err)
	}
	return row.toDomain(), nil
}

func (s *Store) GetByDisplayName(ctx context.Context, name string) (identity.Identity, error) {
	ids, err := s.queryUsers(ctx, func(q *QueryBuilder) *QueryBuilder {
		return q.Eq("user_profiles.display_name", name).Limit(1)
	})
	if err != nil {
		return identity.Identity{}, fmt.Errorf("get user by display name: %w", err)
	}
	if len(ids) == 0 {
		return identity.Identity{}, storage.ErrNotFound
	}
	return ids[0], nil
}

func (s *Store) FindByDisplayNameFragment(ctx context.Context, fragment string, limit int) ([]identity.Identity, error) {
	ids, err := s.queryUsers(ctx, func(q *QueryBuilder) *QueryBuilder {
		return q.ILike("user_profiles.display_name", "%"+fragment+"%").Order("username", true).Limit(limit)
	})
	if err != nil {
		return nil, fmt.Errorf("find user by display name fragment: %w", err)
	}
	return ids, nil
}

func (s *Store) FindByHandleFragment(ctx context.Context, fragment string, limit int) ([]identity.Identity, error) {
	ids, err := s.queryUsers(ctx, func(q *QueryBuilder) *QueryBuilder {
		return q.ILike("username", "%"+fragment+"%").Order("username", true).Limit(limit)
	})
	if err != nil {
		return nil, fmt.Errorf("find user by handle fragment: %w", err)
	}
	return ids, nil
}

func (s *Store) Search(ctx context.Context, prefix string, excludeHandle string, limit int) ([]identity.Identity, error) {
	byHandle, err := s.queryUsers(ctx, func(q *QueryBuilder) *QueryBuilder {
		return q.ILike("username", prefix+"%").
			Neq("username", strings.ToLower(excludeHandle)).
			Order("username", true).
			Limit(limit)
	})
	if err != nil {
		return nil, fmt.Errorf("search users by handle: %w", err)
	}
	byName, err := s.queryUsers(ctx, func(q *QueryBuilder) *QueryBuilder {
		return q.ILike("user_profiles.display_name", prefix+"%").
			Neq("username", strings.ToLower(excludeHandle)).
			Order("username", true).
			Limit(limit)
	})
	if err != nil {
		return nil, fmt.Errorf("search users by display name: %w", err)
	}

	seen := make(map[string]bool, len(byHandle))
	out := make([]identity.Identity, 0, limit)
	for _, id := range append(byHandle, byName...) {
		if seen[id.AccountID] {
			continue
		}
		seen[id.AccountID] = true
		out = append(out, id)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) queryUsers(ctx context.Context, shape func(*QueryBuilder) *QueryBuilder) ([]identity.Identity, error) {
	q := shape(s.client.From(tableUsers).Select(userColumns))
	var rows []userRow
	if err := q.Execute(ctx, &rows); err != nil {
		return nil, err
	}
	out := make([]identity.Identity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
