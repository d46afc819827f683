package chain

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/storage"
)

// Simulator is an in-process LedgerNetwork for development and tests.
// Accounts and balances are seeded by hand; broadcasts are recorded and
// assigned synthetic transaction ids.
type Simulator struct {
	mu        sync.Mutex
	accounts  map[string]simAccount
	broadcast []storage.TransferBroadcast
	failNext  error
}

type simAccount struct {
	available decimal.Decimal
	reward    decimal.Decimal
}

var _ storage.LedgerNetwork = (*Simulator)(nil)

func NewSimulator() *Simulator {
	return &Simulator{accounts: make(map[string]simAccount)}
}

// SeedAccount registers a network account with the given balances.
func (s *Simulator) SeedAccount(name string, available, reward decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[name] = simAccount{available: available, reward: reward}
}

// FailNextBroadcast makes the next Broadcast call return err.
func (s *Simulator) FailNextBroadcast(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Broadcasts returns every transfer handed to the simulator so far.
func (s *Simulator) Broadcasts() []storage.TransferBroadcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.TransferBroadcast, len(s.broadcast))
	copy(out, s.broadcast)
	return out
}

func (s *Simulator) Broadcast(_ context.Context, tx storage.TransferBroadcast) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return "", err
	}
	if !ValidateSigningSecret(tx.SigningSecret) {
		return "", fmt.Errorf("network rejected transaction: invalid signature")
	}
	if _, ok := s.accounts[tx.Destination]; !ok {
		return "", fmt.Errorf("network rejected transaction: unknown account %s", tx.Destination)
	}

	s.broadcast = append(s.broadcast, tx)
	return uuid.NewString(), nil
}

func (s *Simulator) AccountExists(_ context.Context, account string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[account]
	return ok, nil
}

func (s *Simulator) AccountBalance(_ context.Context, account string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[account]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("account %s not found on network", account)
	}
	return acc.available, acc.reward, nil
}
