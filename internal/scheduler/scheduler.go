// Package scheduler runs the background jobs around the subscription
// lifecycle: daily auto-renewal attempts and the status-freshness sweep.
// Correctness never depends on it; expiry is evaluated off the clock on
// every read, the sweep only keeps stored rows presentable.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/weldvault/weldvault/internal/clock"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Charger attempts an off-session charge against the owner's stored
// payment method. The rail behind it is external; a deployment without
// one leaves auto-renewal to the manual payment path.
type Charger interface {
	Charge(ctx context.Context, sub subscriptiondomain.Subscription) error
}

const jobTimeout = 5 * time.Minute

type Params struct {
	fx.In

	Log             *zap.Logger
	SubscriptionSvc subscriptiondomain.Service
	Clock           clock.Clock
	Charger         Charger `optional:"true"`
	Config          Config  `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	subs    subscriptiondomain.Service
	charger Charger
	cron    *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.SubscriptionSvc == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler"),
		cfg:     p.Config.withDefaults(),
		clock:   p.Clock,
		subs:    p.SubscriptionSvc,
		charger: p.Charger,
	}, nil
}

// Start registers the cron entries and begins running them.
func (s *Scheduler) Start() error {
	s.cron = cron.New()

	if s.charger != nil {
		if _, err := s.cron.AddFunc(s.cfg.RenewalSpec, s.renewalJob); err != nil {
			return err
		}
	} else {
		s.log.Info("no charger wired; auto-renewal left to the manual payment path")
	}

	if _, err := s.cron.AddFunc(s.cfg.SweepSpec, s.sweepJob); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("scheduler started",
		zap.String("renewal_spec", s.cfg.RenewalSpec),
		zap.String("sweep_spec", s.cfg.SweepSpec),
	)
	return nil
}

// Stop halts the cron runner and waits for in-flight jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	select {
	case <-s.cron.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) renewalJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if err := s.RunRenewals(ctx); err != nil {
		s.log.Error("renewal job failed", zap.Error(err))
	}
}

func (s *Scheduler) sweepJob() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	if _, err := s.subs.SweepExpired(ctx, s.cfg.BatchSize); err != nil {
		s.log.Error("expiry sweep failed", zap.Error(err))
	}
}

// RunRenewals charges every subscription inside its renewal window and
// records the attempt. Per-day and per-count limits live in the
// subscription service; a repeat run on the same day is a no-op.
func (s *Scheduler) RunRenewals(ctx context.Context) error {
	due, err := s.subs.ListDueForRenewal(ctx, s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, sub := range due {
		chargeErr := s.charger.Charge(ctx, sub)
		if chargeErr != nil {
			s.log.Warn("renewal charge failed",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(chargeErr),
			)
		}

		_, err := s.subs.RecordRenewalAttempt(ctx, sub.ID.String(), chargeErr == nil)
		switch {
		case err == nil:
		case errors.Is(err, subscriptiondomain.ErrRenewalAttemptedToday),
			errors.Is(err, subscriptiondomain.ErrRenewalNotDue),
			errors.Is(err, subscriptiondomain.ErrRenewalExhausted):
			// Another run already covered this one.
		default:
			s.log.Error("renewal attempt not recorded",
				zap.String("subscription_id", sub.ID.String()),
				zap.Error(err),
			)
		}
	}
	return nil
}
