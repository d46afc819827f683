package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/blurttok/wallet_layer/internal/app"
	"github.com/blurttok/wallet_layer/internal/chain"
	"github.com/blurttok/wallet_layer/internal/config"
	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/gateway"
	"github.com/blurttok/wallet_layer/internal/services/transfer"
	"github.com/blurttok/wallet_layer/internal/storage/memory"
)

func newServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()

	store := memory.New()
	store.AddUser(
		domid.Identity{Handle: "alice", DisplayName: "Alice Jones"},
		wallet.Account{LedgerAccountID: "alice-chain", AvailableBalance: decimal.NewFromInt(100)},
	)
	store.AddUser(
		domid.Identity{Handle: "bob", DisplayName: "Bob Smith"},
		wallet.Account{LedgerAccountID: "bob-chain", AvailableBalance: decimal.NewFromInt(50)},
	)

	network := chain.NewSimulator()
	network.SeedAccount("blurttok.treasury", decimal.NewFromInt(5000), decimal.NewFromInt(120))

	cfg := config.Config{Simulation: true, RateLimitPerMinute: 1000}
	application, err := app.New(cfg, app.Collaborators{
		Store:     store,
		Directory: store,
		Network:   network,
		Gateway:   gateway.NewSimulator(),
	}, nil)
	require.NoError(t, err)

	srv := httptest.NewServer(NewHandler(application, cfg, nil))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { application.Shutdown(context.Background()) })
	return srv, store
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

func doJSON(t *testing.T, method, url string, payload any) (int, envelope) {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req, err := http.NewRequest(method, url, &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func startSession(t *testing.T, srv *httptest.Server, handle string) string {
	t.Helper()

	status, env := doJSON(t, http.MethodPost, srv.URL+"/sessions", map[string]string{"handle": handle})
	require.Equal(t, http.StatusCreated, status)
	require.True(t, env.Success)

	var data struct {
		User domid.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.User.AccountID)
	return data.User.AccountID
}

func TestSessionAndWalletState(t *testing.T) {
	srv, _ := newServer(t)
	userID := startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodGet, srv.URL+"/wallet/"+userID, nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var snap struct {
		Account wallet.Account `json:"account"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Equal(t, "100", snap.Account.AvailableBalance.String())
}

func TestTransferEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	userID := startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodPost, srv.URL+"/wallet/"+userID+"/transfers", map[string]string{
		"recipient": "bob",
		"amount":    "40",
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var result wallet.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, "1", result.Fee.String())
	require.Equal(t, "39", result.NetAmount.String())
}

func TestTransferAcceptsCallerMemo(t *testing.T) {
	srv, store := newServer(t)
	userID := startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodPost, srv.URL+"/wallet/"+userID+"/transfers", map[string]string{
		"recipient":   "bob",
		"amount":      "5",
		"memo":        "dinner",
		"description": "Split the bill",
	})
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var result wallet.TransferResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Equal(t, "dinner", result.Memo)

	rows, err := store.ListRecentTransactions(context.Background(), userID, 20)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	require.Equal(t, "dinner", rows[0].Memo)
	require.Equal(t, "Split the bill", rows[0].Description)
}

func TestTransferInsufficientFundsShape(t *testing.T) {
	srv, _ := newServer(t)
	userID := startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodPost, srv.URL+"/wallet/"+userID+"/transfers", map[string]string{
		"recipient": "bob",
		"amount":    "5000",
	})
	require.Equal(t, http.StatusUnprocessableEntity, status)
	require.False(t, env.Success)
	require.Equal(t, "insufficient_funds", env.Error.Code)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	srv, _ := newServer(t)

	status, env := doJSON(t, http.MethodGet, srv.URL+"/wallet/nobody", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.False(t, env.Success)
	require.Equal(t, "not_found", env.Error.Code)
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := newServer(t)
	startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodGet, srv.URL+"/users/search?q=bo&self=alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	var ids []domid.Identity
	require.NoError(t, json.Unmarshal(env.Data, &ids))
	require.Len(t, ids, 1)
	require.Equal(t, "bob", ids[0].Handle)
}

func TestPlatformBalanceProbe(t *testing.T) {
	srv, _ := newServer(t)

	status, env := doJSON(t, http.MethodGet, srv.URL+"/platform/balance", nil)
	require.Equal(t, http.StatusOK, status)

	var balance wallet.PlatformBalance
	require.NoError(t, json.Unmarshal(env.Data, &balance))
	require.Equal(t, "blurttok.treasury", balance.Account)
	require.Equal(t, "5000", balance.Available.String())
	require.Equal(t, "120", balance.Reward.String())
}

func TestWalletStatusIdle(t *testing.T) {
	srv, _ := newServer(t)
	userID := startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodGet, srv.URL+"/wallet/"+userID+"/status", nil)
	require.Equal(t, http.StatusOK, status)

	var flags transfer.Status
	require.NoError(t, json.Unmarshal(env.Data, &flags))
	require.False(t, flags.SendingInternal)
	require.False(t, flags.SendingExternal)
}

func TestLedgerDepositFlow(t *testing.T) {
	srv, store := newServer(t)
	userID := startSession(t, srv, "alice")

	status, env := doJSON(t, http.MethodPost, srv.URL+"/wallet/"+userID+"/deposits/ledger", map[string]string{
		"amount": "40",
	})
	require.Equal(t, http.StatusCreated, status)

	var handle wallet.DepositHandle
	require.NoError(t, json.Unmarshal(env.Data, &handle))
	require.NotNil(t, handle.Instructions)

	// Confirming before settlement is a retryable conflict.
	status, env = doJSON(t, http.MethodPost, srv.URL+"/wallet/"+userID+"/deposits/"+handle.TransactionID+"/confirm", nil)
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "settlement_not_yet_confirmed", env.Error.Code)
	require.True(t, env.Error.Retryable)

	// Settlement lands; confirmation credits the wallet.
	store.RecordSettlement(handle.Instructions.Memo, "blurttok.treasury", decimal.NewFromInt(40))
	status, env = doJSON(t, http.MethodPost, srv.URL+"/wallet/"+userID+"/deposits/"+handle.TransactionID+"/confirm", nil)
	require.Equal(t, http.StatusOK, status)

	var result wallet.ConfirmResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.True(t, result.Settled)
	require.Equal(t, "140", result.NewBalance.String())
}
