package supabase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
)

// Table names.
const (
	tableUsers        = "users"
	tableBalances     = "balances"
	tableTransactions = "wallet_transactions"
)

// Stored procedure names.
const (
	rpcTransferFunds  = "transfer_funds"
	rpcConfirmDeposit = "confirm_pending_deposit"
)

type balanceRow struct {
	UserID           string          `json:"user_id"`
	AccountID        string          `json:"account_id"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	RewardBalance    decimal.Decimal `json:"reward_balance"`
}

func (r balanceRow) toDomain() wallet.Account {
	return wallet.Account{
		UserID:           r.UserID,
		LedgerAccountID:  r.AccountID,
		AvailableBalance: r.AvailableBalance,
		RewardBalance:    r.RewardBalance,
	}
}

type profileRow struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// userRow carries the users row with its embedded profile resource.
type userRow struct {
	ID       string       `json:"id"`
	Username string       `json:"username"`
	Profiles []profileRow `json:"user_profiles"`
}

func (r userRow) toDomain() identity.Identity {
	id := identity.Identity{
		AccountID: r.ID,
		Handle:    r.Username,
	}
	if len(r.Profiles) > 0 {
		id.DisplayName = r.Profiles[0].DisplayName
		id.AvatarURL = r.Profiles[0].AvatarURL
	}
	if id.DisplayName == "" {
		id.DisplayName = r.Username
	}
	return id
}

type partyRow struct {
	Username string `json:"username"`
}

// transactionRow is a wallet_transactions row with counterparty handles
// embedded via the sender/receiver foreign keys.
type transactionRow struct {
	ID          string            `json:"id"`
	SenderID    string            `json:"sender_id"`
	ReceiverID  string            `json:"receiver_id"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Memo        string            `json:"memo"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	Sender      *partyRow         `json:"sender,omitempty"`
	Receiver    *partyRow         `json:"receiver,omitempty"`
}

func (r transactionRow) toDomain() wallet.Transaction {
	tx := wallet.Transaction{
		ID:          r.ID,
		SenderID:    r.SenderID,
		ReceiverID:  r.ReceiverID,
		Amount:      r.Amount,
		Fee:         r.Fee,
		Type:        wallet.TxType(r.Type),
		Status:      wallet.TxStatus(r.Status),
		Memo:        r.Memo,
		Description: r.Description,
		Metadata:    r.Metadata,
		CreatedAt:   r.CreatedAt,
	}
	if r.Sender != nil {
		tx.SenderHandle = r.Sender.Username
	}
	if r.Receiver != nil {
		tx.ReceiverHandle = r.Receiver.Username
	}
	return tx
}

type insertTransaction struct {
	SenderID    string            `json:"sender_id"`
	ReceiverID  string            `json:"receiver_id,omitempty"`
	Amount      decimal.Decimal   `json:"amount"`
	Fee         decimal.Decimal   `json:"fee"`
	Type        string            `json:"type"`
	Status      string            `json:"status"`
	Memo        string            `json:"memo"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type transferFundsParams struct {
	SenderUsername      string          `json:"sender_username"`
	ReceiverUsername    string          `json:"receiver_username"`
	TransferAmount      decimal.Decimal `json:"transfer_amount"`
	TransferMemo        string          `json:"transfer_memo"`
	TransferDescription string          `json:"transfer_description"`
}

type transferFundsRow struct {
	Success       bool            `json:"success"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Error         string          `json:"error"`
}

type confirmDepositParams struct {
	TransactionID string          `json:"transaction_id"`
	ConfirmAmount decimal.Decimal `json:"confirm_amount"`
}

type confirmDepositRow struct {
	Success    bool            `json:"success"`
	NewBalance decimal.Decimal `json:"new_balance"`
	Message    string          `json:"message"`
	Error      string          `json:"error"`
}
