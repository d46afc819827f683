package identity

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	walleterr "github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/internal/storage/memory"
)

func seededStore(t *testing.T) *memory.Store {
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
	store.AddUser(
		domid.Identity{Handle: "bonnie", DisplayName: "Bonnie Gray"},
		wallet.Account{LedgerAccountID: "bonnie-chain"},
	)
	return store
}

func TestResolveExactHandleWinsOverDisplayName(t *testing.T) {
	store := seededStore(t)
	// A user whose display name collides with another user's handle.
	store.AddUser(
		domid.Identity{Handle: "zed", DisplayName: "alice"},
		wallet.Account{LedgerAccountID: "zed-chain"},
	)
	r := NewResolver(store, nil)

	id, err := r.Resolve(context.Background(), "alice")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Handle != "alice" {
		t.Fatalf("expected handle match to win, got %q", id.Handle)
	}
}

func TestResolveFallsBackToDisplayName(t *testing.T) {
	r := NewResolver(seededStore(t), nil)

	id, err := r.Resolve(context.Background(), "Bob Smith")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Handle != "bob" {
		t.Fatalf("expected bob, got %q", id.Handle)
	}
}

func TestResolveFragmentFirstRowWins(t *testing.T) {
	r := NewResolver(seededStore(t), nil)

	// "Smith" is a display name fragment only.
	id, err := r.Resolve(context.Background(), "Smith")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Handle != "bob" {
		t.Fatalf("expected bob, got %q", id.Handle)
	}

	// "bo" matches bob and bonnie by handle fragment; first row wins.
	id, err = r.Resolve(context.Background(), "bo")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.Handle != "bob" {
		t.Fatalf("expected deterministic first row bob, got %q", id.Handle)
	}
}

func TestResolveUnknownUser(t *testing.T) {
	r := NewResolver(seededStore(t), nil)

	_, err := r.Resolve(context.Background(), "nobody-here")
	if walleterr.CodeOf(err) != walleterr.CodeNotFound {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestResolveEmptyInput(t *testing.T) {
	r := NewResolver(seededStore(t), nil)

	_, err := r.Resolve(context.Background(), "   ")
	if walleterr.CodeOf(err) != walleterr.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResolveExactRejectsFuzzyInput(t *testing.T) {
	r := NewResolver(seededStore(t), nil)

	// Display names and fragments resolve through Resolve but never
	// through ResolveExact.
	if _, err := r.ResolveExact(context.Background(), "Bob Smith"); walleterr.CodeOf(err) != walleterr.CodeNotFound {
		t.Fatalf("expected not-found for display name, got %v", err)
	}
	if _, err := r.ResolveExact(context.Background(), "bo"); walleterr.CodeOf(err) != walleterr.CodeNotFound {
		t.Fatalf("expected not-found for fragment, got %v", err)
	}

	id, err := r.ResolveExact(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ResolveExact: %v", err)
	}
	if id.Handle != "bob" {
		t.Fatalf("expected bob, got %q", id.Handle)
	}
}

func TestSearchShortPrefixSkipsDirectory(t *testing.T) {
	r := NewResolver(failingDirectory{}, nil)

	ids, err := r.Search(context.Background(), "a", "alice")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty result for short prefix, got %d", len(ids))
	}
}

func TestSearchExcludesSelf(t *testing.T) {
	r := NewResolver(seededStore(t), nil)

	ids, err := r.Search(context.Background(), "bo", "bob")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, id := range ids {
		if id.Handle == "bob" {
			t.Fatalf("search must exclude the requesting user")
		}
	}
	if len(ids) != 1 || ids[0].Handle != "bonnie" {
		t.Fatalf("expected only bonnie, got %v", ids)
	}
}

// failingDirectory errors on every call so tests can prove a path never
// touches the directory.
type failingDirectory struct{}

func (failingDirectory) GetByHandle(context.Context, string) (domid.Identity, error) {
	return domid.Identity{}, errors.New("directory must not be called")
}
func (failingDirectory) GetByDisplayName(context.Context, string) (domid.Identity, error) {
	return domid.Identity{}, errors.New("directory must not be called")
}
func (failingDirectory) FindByDisplayNameFragment(context.Context, string, int) ([]domid.Identity, error) {
	return nil, errors.New("directory must not be called")
}
func (failingDirectory) FindByHandleFragment(context.Context, string, int) ([]domid.Identity, error) {
	return nil, errors.New("directory must not be called")
}
func (failingDirectory) Search(context.Context, string, string, int) ([]domid.Identity, error) {
	return nil, errors.New("directory must not be called")
}

var _ storage.UserDirectory = failingDirectory{}
