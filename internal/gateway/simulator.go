package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/blurttok/wallet_layer/internal/storage"
)

// Simulator is an in-process PaymentGateway for development and tests.
type Simulator struct {
	mu       sync.Mutex
	sessions []storage.PaymentSession
	failNext error
}

var _ storage.PaymentGateway = (*Simulator)(nil)

func NewSimulator() *Simulator {
	return &Simulator{}
}

// FailNextPayment makes the next InitializePayment call return err.
func (s *Simulator) FailNextPayment(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// Sessions returns every payment session created so far.
func (s *Simulator) Sessions() []storage.PaymentSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.PaymentSession, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *Simulator) InitializePayment(_ context.Context, _ decimal.Decimal, _ string) (storage.PaymentSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return storage.PaymentSession{}, err
	}

	ref := uuid.NewString()
	session := storage.PaymentSession{
		CorrelationID: ref,
		RedirectURL:   fmt.Sprintf("https://paystack.com/pay/blurtok-%s", ref),
	}
	s.sessions = append(s.sessions, session)
	return session, nil
}
