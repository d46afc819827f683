package deposit

import (
	"context"
	"sync"
	"time"

	"github.com/blurttok/wallet_layer/internal/errors"
	"github.com/blurttok/wallet_layer/internal/storage"
	"github.com/blurttok/wallet_layer/pkg/logger"
)

// ConfirmationPoller periodically retries confirmation of the user's
// pending deposits so settlement lands without the client polling.
type ConfirmationPoller struct {
	store      storage.BackingStore
	reconciler *Reconciler
	userID     string
	interval   time.Duration
	log        *logger.Logger

	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	running     bool
	nextAttempt map[string]time.Time
}

func NewConfirmationPoller(store storage.BackingStore, reconciler *Reconciler, userID string, interval time.Duration, log *logger.Logger) *ConfirmationPoller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if log == nil {
		log = logger.NewDefault("deposit-poller")
	}
	return &ConfirmationPoller{
		store:       store,
		reconciler:  reconciler,
		userID:      userID,
		interval:    interval,
		log:         log,
		nextAttempt: make(map[string]time.Time),
	}
}

func (p *ConfirmationPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				p.tick(runCtx)
			}
		}
	}()

	p.log.Info("deposit confirmation poller started", "user_id", p.userID)
	return nil
}

func (p *ConfirmationPoller) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	cancel := p.cancel
	p.running = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}

func (p *ConfirmationPoller) tick(ctx context.Context) {
	pending, err := p.store.ListPendingDeposits(ctx, p.userID)
	if err != nil {
		p.log.WithError(err).Warn("list pending deposits failed")
		return
	}

	now := time.Now()
	for _, tx := range pending {
		if !p.shouldAttempt(tx.ID, now) {
			continue
		}

		_, err := p.reconciler.ConfirmDeposit(ctx, tx.ID)
		switch errors.CodeOf(err) {
		case "":
			p.log.Infof("deposit %s settled by poller", tx.ID)
			p.clearSchedule(tx.ID)
		case errors.CodeSettlementPending:
			p.scheduleNext(tx.ID, p.interval)
		case errors.CodeSettlementBroken:
			// Fatal for this handle; stop retrying it.
			p.log.Warnf("deposit %s has a mismatched settlement", tx.ID)
			p.scheduleNext(tx.ID, 24*time.Hour)
		default:
			p.log.WithError(err).Warnf("confirm deposit %s failed", tx.ID)
			p.scheduleNext(tx.ID, 2*p.interval)
		}
	}
}

func (p *ConfirmationPoller) shouldAttempt(id string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, ok := p.nextAttempt[id]
	return !ok || now.After(next)
}

func (p *ConfirmationPoller) scheduleNext(id string, after time.Duration) {
	p.mu.Lock()
	p.nextAttempt[id] = time.Now().Add(after)
	p.mu.Unlock()
}

func (p *ConfirmationPoller) clearSchedule(id string) {
	p.mu.Lock()
	delete(p.nextAttempt, id)
	p.mu.Unlock()
}
