package supabase

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/storage"
)

// fakePostgrest serves canned responses for the transactions table, keyed by
// method.
func fakePostgrest(t *testing.T, patchBody, getBody string) *Store {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/rest/v1/"+tableTransactions) {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodPatch:
			w.Write([]byte(patchBody))
		case http.MethodGet:
			w.Write([]byte(getBody))
		default:
			t.Fatalf("unexpected method %s", r.Method)
		}
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{URL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewStore(client, nil)
}

func TestUpdateTransactionStatusUpdatesPendingRow(t *testing.T) {
	store := fakePostgrest(t, `[{"id":"tx1","status":"failed"}]`, `[]`)

	if err := store.UpdateTransactionStatus(context.Background(), "tx1", wallet.StatusFailed); err != nil {
		t.Fatalf("UpdateTransactionStatus: %v", err)
	}
}

func TestUpdateTransactionStatusRefusesConfirmedRow(t *testing.T) {
	// The status filter matches nothing, but the row exists: it is
	// confirmed and must stay immutable.
	store := fakePostgrest(t, `[]`, `[{"id":"tx1","status":"confirmed"}]`)

	err := store.UpdateTransactionStatus(context.Background(), "tx1", wallet.StatusFailed)
	if err == nil {
		t.Fatalf("expected an immutability error")
	}
	if !strings.Contains(err.Error(), "immutable") {
		t.Fatalf("expected immutability error, got %v", err)
	}
}

func TestUpdateTransactionStatusMissingRow(t *testing.T) {
	store := fakePostgrest(t, `[]`, `[]`)

	err := store.UpdateTransactionStatus(context.Background(), "tx-nope", wallet.StatusFailed)
	if err != storage.ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
