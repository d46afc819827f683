// Package app ties the wallet services together and manages per-user
// session lifecycle.
package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/blurttok/wallet_layer/internal/chain"
	"github.com/blurttok/wallet_layer/internal/config"
	domid "github.com/blurttok/wallet_layer/internal/domain/identity"
	"github.com/blurttok/wallet_layer/internal/domain/wallet"
	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/gateway"
	"github.com/blurttok/wallet_layer/internal/services/balance"
	"github.com/blurttok/wallet_layer/internal/services/deposit"
	"github.com/blurttok/wallet_layer/internal/services/feed"
	identitysvc "github.com/blurttok/wallet_layer/internal/services/identity"
	"github.com/blurttok/wallet_layer/internal/services/transfer"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/internal/storage/memory"
	"github.com/blurttok/wallet_layer/internal/supabase"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

// Collaborators encapsulates external dependencies. Nil fields default to
// the configured implementation, or to the in-process fakes in simulation
// mode.
type Collaborators struct {
	Store     storage.BackingStore
	Directory storage.UserDirectory
	Network   storage.LedgerNetwork
	Gateway   storage.PaymentGateway
	Feed      storage.ChangeFeed
}

// Session bundles the per-user services: the cached wallet view, money
// movement, deposits and the change feed listener.
type Session struct {
	User     domid.Identity
	Balance  *balance.Service
	Transfer *transfer.Coordinator
	Deposit  *deposit.Reconciler
	Poller   *deposit.ConfirmationPoller
	Listener *feed.Listener
}

// Application wires the wallet services and owns one Session per user.
type Application struct {
	cfg      config.Config
	log      *logger.Logger
	store    storage.BackingStore
	network  storage.LedgerNetwork
	gateway  storage.PaymentGateway
	feed     storage.ChangeFeed
	resolver *identitysvc.Resolver

	mu       sync.Mutex
	sessions map[string]*Session // by user id
}

// New builds the application from configuration. Simulation mode swaps the
// Supabase store, ledger network and payment gateway for in-process fakes.
func New(cfg config.Config, collab Collaborators, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("wallet-app")
	}

	store := collab.Store
	directory := collab.Directory
	if store == nil || directory == nil {
		if cfg.Simulation {
			mem := memory.New()
			if store == nil {
				store = mem
			}
			if directory == nil {
				directory = mem
			}
		} else {
			client, err := supabase.NewClient(supabase.Config{
				URL:    cfg.SupabaseURL,
				APIKey: cfg.SupabaseKey,
			})
			if err != nil {
				return nil, fmt.Errorf("supabase client: %w", err)
			}
			sb := supabase.NewStore(client, logger.NewDefault("supabase-store"))
			if store == nil {
				store = sb
			}
			if directory == nil {
				directory = sb
			}
		}
	}

	network := collab.Network
	if network == nil {
		if cfg.Simulation {
			network = chain.NewSimulator()
		} else {
			network = chain.NewClient(chain.Config{
				NodeURL:  cfg.ChainNodeURL,
				RelayURL: cfg.ChainRelayURL,
			}, logger.NewDefault("chain"))
		}
	}

	paygate := collab.Gateway
	if paygate == nil {
		if cfg.Simulation || cfg.PaystackSecretKey == "" {
			paygate = gateway.NewSimulator()
		} else {
			var err error
			paygate, err = gateway.NewPaystackClient(gateway.Config{
				SecretKey: cfg.PaystackSecretKey,
			}, logger.NewDefault("gateway"))
			if err != nil {
				return nil, fmt.Errorf("payment gateway: %w", err)
			}
		}
	}

	changeFeed := collab.Feed
	if changeFeed == nil && !cfg.Simulation {
		changeFeed = supabase.NewRealtimeFeed(cfg.SupabaseURL, cfg.SupabaseKey, logger.NewDefault("realtime-feed"))
	}

	return &Application{
		cfg:      cfg,
		log:      log,
		store:    store,
		network:  network,
		gateway:  paygate,
		feed:     changeFeed,
		resolver: identitysvc.NewResolver(directory, logger.NewDefault("identity-resolver")),
		sessions: make(map[string]*Session),
	}, nil
}

// Resolver exposes identity resolution for surfaces that do not need a
// session.
func (a *Application) Resolver() *identitysvc.Resolver { return a.resolver }

// Store exposes the backing store for read-only surfaces.
func (a *Application) Store() storage.BackingStore { return a.store }

// PlatformBalance probes the treasury account's liquid and reward balances
// on the ledger network.
func (a *Application) PlatformBalance(ctx context.Context) (wallet.PlatformBalance, error) {
	account := a.cfg.TreasuryAccount
	if account == "" {
		account = deposit.DefaultTreasuryAccount
	}
	available, reward, err := a.network.AccountBalance(ctx, account)
	if err != nil {
		return wallet.PlatformBalance{}, errors.DataUnavailable("platform balance unavailable", err)
	}
	return wallet.PlatformBalance{
		Account:   account,
		Available: available,
		Reward:    reward,
	}, nil
}

// StartSession resolves the handle, builds the user's services, primes the
// cache and starts the background machinery. Starting an already started
// session returns the existing one.
func (a *Application) StartSession(ctx context.Context, handle string) (*Session, error) {
	user, err := a.resolver.ResolveExact(ctx, handle)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if s, ok := a.sessions[user.AccountID]; ok {
		a.mu.Unlock()
		return s, nil
	}
	a.mu.Unlock()

	cache := balance.NewService(a.store, user.AccountID, logger.NewDefault("balance"))
	reconciler := deposit.NewReconciler(a.store, a.gateway, cache, user, a.cfg.TreasuryAccount, logger.NewDefault("deposit"))
	s := &Session{
		User:     user,
		Balance:  cache,
		Transfer: transfer.NewCoordinator(a.store, a.resolver, a.network, cache, user, logger.NewDefault("transfer")),
		Deposit:  reconciler,
		Poller:   deposit.NewConfirmationPoller(a.store, reconciler, user.AccountID, a.cfg.PollInterval, logger.NewDefault("deposit-poller")),
	}
	if a.feed != nil {
		s.Listener = feed.NewListener(a.feed, cache, logger.NewDefault("feed"))
	}

	a.mu.Lock()
	if existing, ok := a.sessions[user.AccountID]; ok {
		a.mu.Unlock()
		return existing, nil
	}
	a.sessions[user.AccountID] = s
	a.mu.Unlock()

	if _, err := cache.Refresh(ctx); err != nil {
		a.log.WithError(err).Warnf("initial refresh failed for %s", user.Handle)
	}
	if s.Listener != nil {
		if err := s.Listener.Subscribe(ctx); err != nil {
			a.log.WithError(err).Warnf("change feed subscription failed for %s", user.Handle)
		}
	}
	if err := s.Poller.Start(ctx); err != nil {
		a.log.WithError(err).Warnf("deposit poller failed to start for %s", user.Handle)
	}

	a.log.Info("session started", "user", user.Handle)
	return s, nil
}

// Session returns the running session for a user id, if any.
func (a *Application) Session(userID string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[userID]
	return s, ok
}

// CloseSession tears down a user's background machinery.
func (a *Application) CloseSession(ctx context.Context, userID string) error {
	a.mu.Lock()
	s, ok := a.sessions[userID]
	delete(a.sessions, userID)
	a.mu.Unlock()
	if !ok {
		return nil
	}

	var first error
	if s.Listener != nil {
		if err := s.Listener.Unsubscribe(); err != nil {
			first = err
		}
	}
	if err := s.Poller.Stop(ctx); err != nil && first == nil {
		first = err
	}
	a.log.Info("session closed", "user", s.User.Handle)
	return first
}

// Shutdown closes every session.
func (a *Application) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	ids := make([]string, 0, len(a.sessions))
	for id := range a.sessions {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var first error
	for _, id := range ids {
		if err := a.CloseSession(ctx, id); err != nil && first == nil {
			first = err
		}
	}
	return first
}
