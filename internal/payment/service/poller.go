package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/weldvault/weldvault/internal/config"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Outcome is the terminal result of one watched payment flow, as the
// client sees it. Timeout is local only: the server order may still
// settle later through the admin path.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeRejected Outcome = "rejected"
	OutcomeTimeout  Outcome = "timeout"
)

// OutcomeFunc receives the single terminal outcome of a watch.
type OutcomeFunc func(outcome Outcome)

type PollerConfig struct {
	Interval time.Duration
	Budget   time.Duration
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{Interval: 3 * time.Second, Budget: 5 * time.Minute}
}

var ErrAlreadyWatching = errors.New("order_already_watched")

// Poller runs one watch per payment order: a fixed-interval status poll
// racing a wall-clock budget. Whichever observes a terminal condition
// first wins, stops both timers and fires the outcome callback exactly
// once; cancellation stops both timers without a callback.
type Poller struct {
	log *zap.Logger
	svc paymentdomain.Service
	cfg PollerConfig

	mu      sync.Mutex
	watches map[string]*watch
}

type watch struct {
	cancel context.CancelFunc

	mu       sync.Mutex
	terminal bool
}

// claim flips the terminal latch; only the first caller wins.
func (w *watch) claim() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminal {
		return false
	}
	w.terminal = true
	return true
}

type PollerParam struct {
	fx.In

	Log *zap.Logger
	Cfg config.Config
	Svc paymentdomain.Service
}

func NewPoller(p PollerParam) *Poller {
	cfg := DefaultPollerConfig()
	if p.Cfg.PaymentPollIntervalSec > 0 {
		cfg.Interval = time.Duration(p.Cfg.PaymentPollIntervalSec) * time.Second
	}
	if p.Cfg.PaymentPollBudgetSec > 0 {
		cfg.Budget = time.Duration(p.Cfg.PaymentPollBudgetSec) * time.Second
	}
	return NewPollerWithConfig(p.Log, p.Svc, cfg)
}

func NewPollerWithConfig(log *zap.Logger, svc paymentdomain.Service, cfg PollerConfig) *Poller {
	return &Poller{
		log:     log.Named("payment.poller"),
		svc:     svc,
		cfg:     cfg,
		watches: make(map[string]*watch),
	}
}

// Watch starts the poll loop for an order and reports its terminal
// outcome through onOutcome. One watch per order at a time.
func (p *Poller) Watch(ctx context.Context, orderID string, onOutcome OutcomeFunc) error {
	if _, err := p.svc.BeginConfirmation(ctx, orderID); err != nil {
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w := &watch{cancel: cancel}

	p.mu.Lock()
	if _, exists := p.watches[orderID]; exists {
		p.mu.Unlock()
		cancel()
		return ErrAlreadyWatching
	}
	p.watches[orderID] = w
	p.mu.Unlock()

	go p.run(watchCtx, orderID, w, onOutcome)
	return nil
}

func (p *Poller) run(ctx context.Context, orderID string, w *watch, onOutcome OutcomeFunc) {
	ticker := time.NewTicker(p.cfg.Interval)
	budget := time.NewTimer(p.cfg.Budget)
	defer func() {
		ticker.Stop()
		budget.Stop()
		w.cancel()
		p.forget(orderID)
	}()

	for {
		select {
		case <-ctx.Done():
			// Teardown or session end: both timers stop, no outcome.
			w.claim()
			return

		case <-budget.C:
			if w.claim() {
				p.log.Info("payment watch timed out",
					zap.String("order_id", orderID),
					zap.Duration("budget", p.cfg.Budget),
				)
				onOutcome(OutcomeTimeout)
			}
			return

		case <-ticker.C:
			status, err := p.svc.GetStatus(ctx, orderID)
			if err != nil {
				p.log.Warn("payment status poll failed",
					zap.String("order_id", orderID),
					zap.Error(err),
				)
				continue
			}

			var outcome Outcome
			switch status {
			case paymentdomain.OrderStatusSuccess:
				outcome = OutcomeSuccess
			case paymentdomain.OrderStatusRejected:
				outcome = OutcomeRejected
			default:
				continue
			}
			if w.claim() {
				onOutcome(outcome)
			}
			return
		}
	}
}

// Cancel stops the watch for one order without an outcome.
func (p *Poller) Cancel(orderID string) {
	p.mu.Lock()
	w, ok := p.watches[orderID]
	p.mu.Unlock()
	if ok {
		w.claim()
		w.cancel()
	}
}

// CancelAll stops every running watch; used on shutdown so no timers
// leak past the app lifecycle.
func (p *Poller) CancelAll() {
	p.mu.Lock()
	watches := make([]*watch, 0, len(p.watches))
	for _, w := range p.watches {
		watches = append(watches, w)
	}
	p.mu.Unlock()

	for _, w := range watches {
		w.claim()
		w.cancel()
	}
}

func (p *Poller) forget(orderID string) {
	p.mu.Lock()
	delete(p.watches, orderID)
	p.mu.Unlock()
}
