package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/weldvault/weldvault/internal/clock"
	"github.com/weldvault/weldvault/internal/events"
	"github.com/weldvault/weldvault/internal/plan"
	paymentdomain "github.com/weldvault/weldvault/internal/payment/domain"
	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// checkoutBaseURL fronts the external payment rail; the rail itself is
// out of scope here.
const checkoutBaseURL = "https://pay.weldvault.io/checkout/"

// priceCents is the deployment price table, keyed by tier then cycle.
var priceCents = map[plan.Tier]map[subscriptiondomain.BillingCycle]int64{
	plan.TierPersonalPro:        {subscriptiondomain.BillingCycleMonthly: 900, subscriptiondomain.BillingCycleYearly: 9000},
	plan.TierPersonalFlagship:   {subscriptiondomain.BillingCycleMonthly: 2900, subscriptiondomain.BillingCycleYearly: 29000},
	plan.TierEnterpriseBasic:    {subscriptiondomain.BillingCycleMonthly: 9900, subscriptiondomain.BillingCycleYearly: 99000},
	plan.TierEnterprisePro:      {subscriptiondomain.BillingCycleMonthly: 29900, subscriptiondomain.BillingCycleYearly: 299000},
	plan.TierEnterpriseFlagship: {subscriptiondomain.BillingCycleMonthly: 99900, subscriptiondomain.BillingCycleYearly: 999000},
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  paymentdomain.Repository
	subs  subscriptiondomain.Service
	plans *plan.CatalogHolder
	clock clock.Clock
	bus   *events.Bus
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  paymentdomain.Repository
	Subs  subscriptiondomain.Service
	Plans *plan.CatalogHolder
	Clock clock.Clock
	Bus   *events.Bus
}

func NewService(p ServiceParam) paymentdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("payment.service"),
		genID: p.GenID,
		repo:  p.Repo,
		subs:  p.Subs,
		plans: p.Plans,
		clock: p.Clock,
		bus:   p.Bus,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req paymentdomain.CreateOrderRequest) (paymentdomain.PaymentOrder, error) {
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if req.OwnerID == "" || !req.OwnerType.Valid() {
		return paymentdomain.PaymentOrder{}, subscriptiondomain.ErrInvalidOwner
	}
	if req.Method != paymentdomain.MethodRedirect && req.Method != paymentdomain.MethodQR {
		return paymentdomain.PaymentOrder{}, paymentdomain.ErrInvalidMethod
	}

	tier := plan.Tier(req.PlanTier)
	cycles, ok := priceCents[tier]
	if !ok || !s.plans.Catalog().Known(tier) {
		return paymentdomain.PaymentOrder{}, subscriptiondomain.ErrInvalidTier
	}
	amount, ok := cycles[req.BillingCycle]
	if !ok {
		return paymentdomain.PaymentOrder{}, subscriptiondomain.ErrInvalidBillingCycle
	}

	subscriptionID, err := s.governingSubscription(ctx, req)
	if err != nil {
		return paymentdomain.PaymentOrder{}, err
	}

	transactionID := uuid.NewString()
	order := paymentdomain.PaymentOrder{
		ID:             s.genID.Generate(),
		TransactionID:  transactionID,
		OwnerType:      string(req.OwnerType),
		OwnerID:        req.OwnerID,
		PlanTier:       req.PlanTier,
		BillingCycle:   string(req.BillingCycle),
		Method:         req.Method,
		AmountCents:    amount,
		Currency:       "USD",
		Status:         paymentdomain.OrderStatusCreated,
		SubscriptionID: subscriptionID,
		CreatedAt:      s.clock.Now(),
		UpdatedAt:      s.clock.Now(),
	}
	switch req.Method {
	case paymentdomain.MethodRedirect:
		url := checkoutBaseURL + transactionID
		order.RedirectURL = &url
	case paymentdomain.MethodQR:
		payload := fmt.Sprintf("weldvault:pay:%s:%d", transactionID, amount)
		order.QRPayload = &payload
	}

	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		return paymentdomain.PaymentOrder{}, err
	}

	s.log.Info("payment order created",
		zap.String("order_id", order.ID.String()),
		zap.String("owner_id", order.OwnerID),
		zap.String("plan_tier", order.PlanTier),
		zap.String("method", string(order.Method)),
	)
	return order, nil
}

// governingSubscription binds the order to the subscription it pays for.
// A fresh purchase creates a pending one; a restore/renewal order reuses
// the caller's existing subscription after an ownership check.
func (s *Service) governingSubscription(ctx context.Context, req paymentdomain.CreateOrderRequest) (snowflake.ID, error) {
	if req.SubscriptionID == "" {
		sub, err := s.subs.Create(ctx, subscriptiondomain.CreateSubscriptionRequest{
			OwnerType:    req.OwnerType,
			OwnerID:      req.OwnerID,
			PlanTier:     req.PlanTier,
			BillingCycle: req.BillingCycle,
			AutoRenew:    req.AutoRenew,
		})
		if err != nil {
			return 0, err
		}
		return sub.ID, nil
	}

	sub, err := s.subs.GetByID(ctx, req.SubscriptionID)
	if err != nil {
		return 0, err
	}
	if sub.OwnerType != req.OwnerType || sub.OwnerID != req.OwnerID {
		return 0, subscriptiondomain.ErrInvalidSubscription
	}
	return sub.ID, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return paymentdomain.PaymentOrder{}, err
	}
	order, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return paymentdomain.PaymentOrder{}, err
	}
	if order == nil {
		return paymentdomain.PaymentOrder{}, paymentdomain.ErrOrderNotFound
	}
	return *order, nil
}

func (s *Service) GetStatus(ctx context.Context, orderID string) (paymentdomain.OrderStatus, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

func (s *Service) BeginConfirmation(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	order, _, err := s.transitionOrder(ctx, orderID, paymentdomain.OrderStatusPendingConfirm)
	return order, err
}

func (s *Service) AdminConfirm(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	order, changed, err := s.transitionOrder(ctx, orderID, paymentdomain.OrderStatusSuccess)
	if err != nil {
		return paymentdomain.PaymentOrder{}, err
	}
	// Repeated confirmation of an already-successful order is a no-op;
	// only the transition that actually settled the order touches the
	// subscription, so activation happens exactly once.
	if !changed {
		return order, nil
	}

	if err := s.activateSubscription(ctx, order); err != nil {
		return paymentdomain.PaymentOrder{}, err
	}

	s.bus.Publish(ctx, events.Event{
		Topic:     events.TopicPaymentOrderConfirmed,
		SubjectID: order.ID.String(),
		Metadata:  map[string]string{"subscription_id": order.SubscriptionID.String()},
	})
	return order, nil
}

func (s *Service) AdminReject(ctx context.Context, orderID string) (paymentdomain.PaymentOrder, error) {
	order, changed, err := s.transitionOrder(ctx, orderID, paymentdomain.OrderStatusRejected)
	if err != nil {
		return paymentdomain.PaymentOrder{}, err
	}
	if !changed {
		return order, nil
	}

	if err := s.rejectSubscription(ctx, order); err != nil {
		return paymentdomain.PaymentOrder{}, err
	}
	return order, nil
}

func (s *Service) ListOrders(ctx context.Context, ownerType subscriptiondomain.OwnerType, ownerID string) ([]paymentdomain.PaymentOrder, error) {
	return s.repo.ListByOwner(ctx, s.db, string(ownerType), ownerID)
}

// transitionOrder moves an order toward target under a row lock. A
// repeat of an already-applied terminal transition is a no-op; any other
// touch of a terminal order fails.
func (s *Service) transitionOrder(ctx context.Context, orderID string, target paymentdomain.OrderStatus) (paymentdomain.PaymentOrder, bool, error) {
	id, err := parseOrderID(orderID)
	if err != nil {
		return paymentdomain.PaymentOrder{}, false, err
	}

	var result paymentdomain.PaymentOrder
	var changed bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.repo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if order == nil {
			return paymentdomain.ErrOrderNotFound
		}

		if order.Status == target {
			result = *order
			return nil
		}
		if order.Status.IsTerminal() {
			return paymentdomain.ErrOrderTerminal
		}
		// Settlement is scoped to orders awaiting confirmation; a CREATED
		// order has to pass through PENDING_CONFIRM first.
		if target.IsTerminal() && order.Status != paymentdomain.OrderStatusPendingConfirm {
			return paymentdomain.ErrOrderNotPending
		}

		now := s.clock.Now()
		order.Status = target
		order.UpdatedAt = now
		switch target {
		case paymentdomain.OrderStatusSuccess:
			order.ConfirmedAt = &now
		case paymentdomain.OrderStatusRejected:
			order.RejectedAt = &now
		}

		if err := s.repo.Update(ctx, tx, order); err != nil {
			return err
		}
		result = *order
		changed = true

		s.log.Info("payment order transitioned",
			zap.String("order_id", order.ID.String()),
			zap.String("status", string(order.Status)),
		)
		return nil
	})
	if err != nil {
		return paymentdomain.PaymentOrder{}, false, err
	}
	return result, changed, nil
}

// activateSubscription applies the success effect to the governing
// subscription: pending ones activate, lapsed ones restore, an already
// active one gets its period extended when the order paid for renewal.
func (s *Service) activateSubscription(ctx context.Context, order paymentdomain.PaymentOrder) error {
	sub, err := s.subs.GetByID(ctx, order.SubscriptionID.String())
	if err != nil {
		return err
	}

	switch sub.Status {
	case subscriptiondomain.SubscriptionStatusPendingConfirm:
		return s.subs.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonAdminConfirm)
	case subscriptiondomain.SubscriptionStatusRenewalFailed, subscriptiondomain.SubscriptionStatusExpired:
		return s.subs.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonManualRestore)
	case subscriptiondomain.SubscriptionStatusActive:
		// A fresh purchase always creates a pending subscription, so an
		// active one here means the order paid for a renewal. A record
		// that lapsed without being swept is settled to EXPIRED first so
		// the restore opens its new period from now.
		if sub.EffectiveStatus(s.clock.Now()) == subscriptiondomain.SubscriptionStatusExpired {
			if err := s.subs.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusExpired, subscriptiondomain.ReasonExpirySweep); err != nil {
				return err
			}
			return s.subs.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusActive, subscriptiondomain.ReasonManualRestore)
		}
		_, err := s.subs.RenewPeriod(ctx, sub.ID.String())
		return err
	default:
		return subscriptiondomain.ErrInvalidTransition
	}
}

// rejectSubscription declines the pending subscription a fresh purchase
// created; restore orders leave the existing subscription untouched.
func (s *Service) rejectSubscription(ctx context.Context, order paymentdomain.PaymentOrder) error {
	sub, err := s.subs.GetByID(ctx, order.SubscriptionID.String())
	if err != nil {
		return err
	}
	if sub.Status != subscriptiondomain.SubscriptionStatusPendingConfirm {
		return nil
	}
	return s.subs.Transition(ctx, sub.ID.String(), subscriptiondomain.SubscriptionStatusRejected, subscriptiondomain.ReasonAdminReject)
}

func parseOrderID(orderID string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(orderID))
	if err != nil {
		return 0, paymentdomain.ErrInvalidOrderID
	}
	return id, nil
}
