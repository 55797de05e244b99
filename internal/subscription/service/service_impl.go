package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/plan"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID *snowflake.Node
	clock clock.Clock
	repo  subscriptiondomain.Repository
	plans *plan.CatalogHolder
	bus   *events.Bus
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  subscriptiondomain.Repository
	Plans *plan.CatalogHolder
	Bus   *events.Bus
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("subscription.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		plans: p.Plans,
		bus:   p.Bus,
	}
}

// Create opens a new subscription record. New purchases through a
// manually-confirmed channel start in PENDING_CONFIRM and grant nothing
// until confirmation; Activated requests (payment already settled) start
// ACTIVE immediately.
func (s *Service) Create(ctx context.Context, req subscriptiondomain.CreateSubscriptionRequest) (subscriptiondomain.Subscription, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOwner
	}
	switch req.OwnerType {
	case subscriptiondomain.OwnerTypeUser, subscriptiondomain.OwnerTypeCompany:
	default:
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOwner
	}

	tier := plan.Tier(strings.ToLower(strings.TrimSpace(req.PlanTier)))
	if !s.plans.Catalog().Known(tier) || tier == plan.TierFree {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTier
	}

	switch req.BillingCycle {
	case subscriptiondomain.BillingCycleMonthly, subscriptiondomain.BillingCycleYearly:
	default:
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidBillingCycle
	}

	now := s.clock.Now().UTC()
	item := subscriptiondomain.Subscription{
		ID:           s.genID.Generate(),
		OwnerType:    req.OwnerType,
		OwnerID:      ownerID,
		PlanTier:     tier,
		BillingCycle: req.BillingCycle,
		Status:       subscriptiondomain.SubscriptionStatusPendingConfirm,
		StartAt:      now,
		EndAt:        req.BillingCycle.NextPeriodEnd(now),
		AutoRenew:    req.AutoRenew,
		Metadata:     datatypes.JSONMap(req.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if req.Activated {
		item.Status = subscriptiondomain.SubscriptionStatusActive
		item.ActivatedAt = &now
	}

	if err := s.repo.Insert(ctx, s.db, &item); err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.publishChange(ctx, item, subscriptiondomain.TransitionReason("created"))
	return item, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	parsed, err := s.parseID(id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	item, err := s.repo.FindByID(ctx, s.db, parsed)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

// GetCurrentByOwner returns the owner's most recent subscription in any
// stored state. Callers decide entitlement via EffectiveStatus; the stored
// status field is deliberately not trusted for expiry.
func (s *Service) GetCurrentByOwner(ctx context.Context, req subscriptiondomain.GetCurrentByOwnerRequest) (subscriptiondomain.Subscription, error) {
	ownerID := strings.TrimSpace(req.OwnerID)
	if ownerID == "" {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidOwner
	}

	item, err := s.repo.FindLatestByOwner(ctx, s.db, req.OwnerType, ownerID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if item == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrSubscriptionNotFound
	}
	return *item, nil
}

// Transition applies one lifecycle transition. Every attempt either moves
// to a new state, is a same-state no-op, or fails with ErrInvalidTransition;
// nothing is silently dropped.
func (s *Service) Transition(ctx context.Context, id string, target subscriptiondomain.SubscriptionStatus, reason subscriptiondomain.TransitionReason) error {
	parsed, err := s.parseID(id)
	if err != nil {
		return err
	}
	if !isValidStatus(target) {
		return subscriptiondomain.ErrInvalidTargetStatus
	}

	var updated *subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}

		if subscription.Status == target {
			return nil
		}
		if !isTransitionAllowed(subscription.Status, target) {
			return subscriptiondomain.ErrInvalidTransition
		}

		now := s.clock.Now().UTC()
		switch target {
		case subscriptiondomain.SubscriptionStatusActive:
			if subscription.ActivatedAt == nil {
				subscription.ActivatedAt = &now
			}
			// Restoring from RENEWAL_FAILED or EXPIRED opens a new paid
			// period from now.
			if subscription.Status == subscriptiondomain.SubscriptionStatusRenewalFailed ||
				subscription.Status == subscriptiondomain.SubscriptionStatusExpired {
				subscription.EndAt = subscription.BillingCycle.NextPeriodEnd(now)
				subscription.RenewalAttemptCount = 0
			}
		case subscriptiondomain.SubscriptionStatusCanceled:
			subscription.CanceledAt = &now
			subscription.AutoRenew = false
		case subscriptiondomain.SubscriptionStatusExpired, subscriptiondomain.SubscriptionStatusRejected, subscriptiondomain.SubscriptionStatusRenewalFailed:
		default:
			return subscriptiondomain.ErrInvalidTargetStatus
		}

		subscription.Status = target
		subscription.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		updated = subscription
		return nil
	})
	if err != nil {
		return err
	}

	if updated != nil {
		s.log.Info("subscription transition",
			zap.String("subscription_id", updated.ID.String()),
			zap.String("status", string(updated.Status)),
			zap.String("reason", string(reason)),
		)
		s.publishChange(ctx, *updated, reason)
	}
	return nil
}

// Cancel is the user-initiated path: entitlement stays valid until the
// period end, only auto-renew is disabled going forward.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.Transition(ctx, id, subscriptiondomain.SubscriptionStatusCanceled, subscriptiondomain.ReasonUserCancel)
}

// RecordRenewalAttempt registers one auto-renewal attempt. The contract is
// literal: one attempt per calendar day, three days total. The third
// consecutive failure parks the record in RENEWAL_FAILED.
func (s *Service) RecordRenewalAttempt(ctx context.Context, id string, succeeded bool) (subscriptiondomain.Subscription, error) {
	parsed, err := s.parseID(id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var result subscriptiondomain.Subscription
	var exhausted bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if !subscription.AutoRenew {
			return subscriptiondomain.ErrRenewalNotEnabled
		}
		if subscription.Status != subscriptiondomain.SubscriptionStatusActive {
			return subscriptiondomain.ErrInvalidSubscription
		}

		now := s.clock.Now().UTC()
		if !subscription.InRenewalWindow(now) {
			return subscriptiondomain.ErrRenewalNotDue
		}
		if subscription.LastAttemptAt != nil && sameCalendarDay(*subscription.LastAttemptAt, now) {
			return subscriptiondomain.ErrRenewalAttemptedToday
		}
		if subscription.RenewalAttemptCount >= subscriptiondomain.MaxRenewalAttempts {
			return subscriptiondomain.ErrRenewalExhausted
		}

		subscription.LastAttemptAt = &now
		if succeeded {
			subscription.EndAt = subscription.BillingCycle.NextPeriodEnd(subscription.EndAt)
			subscription.RenewalAttemptCount = 0
		} else {
			subscription.RenewalAttemptCount++
			if subscription.RenewalAttemptCount >= subscriptiondomain.MaxRenewalAttempts {
				subscription.Status = subscriptiondomain.SubscriptionStatusRenewalFailed
				exhausted = true
			}
		}
		subscription.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		result = *subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	reason := subscriptiondomain.ReasonPaymentSuccess
	if !succeeded {
		reason = subscriptiondomain.ReasonPaymentFailure
	}
	if exhausted {
		reason = subscriptiondomain.ReasonRenewalExhaust
		s.log.Warn("auto-renewal exhausted",
			zap.String("subscription_id", result.ID.String()),
		)
	}
	s.publishChange(ctx, result, reason)
	return result, nil
}

// RenewPeriod extends an active subscription by one billing cycle after an
// out-of-band renewal payment.
func (s *Service) RenewPeriod(ctx context.Context, id string) (subscriptiondomain.Subscription, error) {
	parsed, err := s.parseID(id)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	var result subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		subscription, err := s.repo.FindByIDForUpdate(ctx, tx, parsed)
		if err != nil {
			return err
		}
		if subscription == nil {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		if subscription.Status != subscriptiondomain.SubscriptionStatusActive {
			return subscriptiondomain.ErrInvalidSubscription
		}

		now := s.clock.Now().UTC()
		subscription.EndAt = subscription.BillingCycle.NextPeriodEnd(subscription.EndAt)
		subscription.RenewalAttemptCount = 0
		subscription.UpdatedAt = now

		if err := s.repo.Update(ctx, tx, subscription); err != nil {
			return err
		}
		result = *subscription
		return nil
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.publishChange(ctx, result, subscriptiondomain.ReasonPaymentSuccess)
	return result, nil
}

func (s *Service) ListDueForRenewal(ctx context.Context, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.repo.ListDueForRenewal(ctx, s.db, s.clock.Now().UTC(), limit)
}

// SweepExpired refreshes stored status for subscriptions whose period has
// lapsed. Correctness never depends on this; reads are pull-evaluated.
func (s *Service) SweepExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 50
	}
	now := s.clock.Now().UTC()
	items, err := s.repo.ListActivePastEnd(ctx, s.db, now, limit)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, item := range items {
		if err := s.Transition(ctx, item.ID.String(), subscriptiondomain.SubscriptionStatusExpired, subscriptiondomain.ReasonExpirySweep); err != nil {
			s.log.Error("expiry sweep failed",
				zap.String("subscription_id", item.ID.String()),
				zap.Error(err),
			)
			continue
		}
		swept++
	}
	return swept, nil
}

func (s *Service) parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	return id, nil
}

func (s *Service) publishChange(ctx context.Context, item subscriptiondomain.Subscription, reason subscriptiondomain.TransitionReason) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, events.Event{
		Topic:     events.TopicSubscriptionChanged,
		SubjectID: item.ID.String(),
		Metadata: map[string]string{
			"owner_type": string(item.OwnerType),
			"owner_id":   item.OwnerID,
			"status":     string(item.Status),
			"reason":     string(reason),
		},
	})
}

func isValidStatus(status subscriptiondomain.SubscriptionStatus) bool {
	switch status {
	case subscriptiondomain.SubscriptionStatusPendingConfirm,
		subscriptiondomain.SubscriptionStatusActive,
		subscriptiondomain.SubscriptionStatusExpired,
		subscriptiondomain.SubscriptionStatusCanceled,
		subscriptiondomain.SubscriptionStatusRejected,
		subscriptiondomain.SubscriptionStatusRenewalFailed:
		return true
	default:
		return false
	}
}

// isTransitionAllowed is the lifecycle table. CANCELED and REJECTED are
// terminal for the record: going back to ACTIVE requires a new payment
// order and a new subscription, never an in-place mutation.
func isTransitionAllowed(current, target subscriptiondomain.SubscriptionStatus) bool {
	switch current {
	case subscriptiondomain.SubscriptionStatusPendingConfirm:
		return target == subscriptiondomain.SubscriptionStatusActive ||
			target == subscriptiondomain.SubscriptionStatusRejected
	case subscriptiondomain.SubscriptionStatusActive:
		return target == subscriptiondomain.SubscriptionStatusCanceled ||
			target == subscriptiondomain.SubscriptionStatusExpired ||
			target == subscriptiondomain.SubscriptionStatusRenewalFailed
	case subscriptiondomain.SubscriptionStatusRenewalFailed:
		return target == subscriptiondomain.SubscriptionStatusActive
	case subscriptiondomain.SubscriptionStatusExpired:
		return target == subscriptiondomain.SubscriptionStatusActive
	default:
		return false
	}
}

func sameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
