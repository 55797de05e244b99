package domain

import (
	"context"
	"errors"

	subscriptiondomain "github.com/weldvault/weldvault/internal/subscription/domain"
)

type CreateOrderRequest struct {
	OwnerType    subscriptiondomain.OwnerType    `json:"owner_type"`
	OwnerID      string                          `json:"owner_id"`
	PlanTier     string                          `json:"plan_tier"`
	BillingCycle subscriptiondomain.BillingCycle `json:"billing_cycle"`
	Method       Method                          `json:"method"`
	AutoRenew    bool                            `json:"auto_renew"`
	// SubscriptionID binds the order to an existing subscription when
	// paying to restore or renew it; empty means a fresh purchase, which
	// creates its own pending subscription.
	SubscriptionID string `json:"subscription_id,omitempty"`
}

type Service interface {
	// CreateOrder opens a new payment attempt. A fresh purchase also
	// creates the governing subscription in its pending state; the
	// entitlement is granted only on the success transition.
	CreateOrder(ctx context.Context, req CreateOrderRequest) (PaymentOrder, error)
	GetOrder(ctx context.Context, orderID string) (PaymentOrder, error)
	GetStatus(ctx context.Context, orderID string) (OrderStatus, error)
	// BeginConfirmation moves a freshly created order into
	// PENDING_CONFIRM once the client enters the payment flow.
	BeginConfirmation(ctx context.Context, orderID string) (PaymentOrder, error)
	// AdminConfirm settles an awaiting order out-of-band. Idempotent on
	// an already-successful order; activates the governing subscription
	// exactly once.
	AdminConfirm(ctx context.Context, orderID string) (PaymentOrder, error)
	// AdminReject declines an awaiting order. Idempotent on an
	// already-rejected order.
	AdminReject(ctx context.Context, orderID string) (PaymentOrder, error)
	ListOrders(ctx context.Context, ownerType subscriptiondomain.OwnerType, ownerID string) ([]PaymentOrder, error)
}

var (
	ErrOrderNotFound  = errors.New("order_not_found")
	ErrInvalidOrderID = errors.New("invalid_order_id")
	ErrInvalidMethod  = errors.New("invalid_method")
	// ErrOrderTerminal rejects transitions that would reopen or flip a
	// settled order.
	ErrOrderTerminal = errors.New("order_terminal")
	// ErrOrderNotPending rejects a settlement of an order that never
	// entered the confirmation queue.
	ErrOrderNotPending = errors.New("order_not_pending")
)
