package domain

import (
	"context"
	"errors"
)

type CreateSubscriptionRequest struct {
	OwnerType    OwnerType      `json:"owner_type"`
	OwnerID      string         `json:"owner_id"`
	PlanTier     string         `json:"plan_tier"`
	BillingCycle BillingCycle   `json:"billing_cycle"`
	AutoRenew    bool           `json:"auto_renew"`
	Activated    bool           `json:"-"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type GetCurrentByOwnerRequest struct {
	OwnerType OwnerType
	OwnerID   string
}

// TransitionReason annotates a lifecycle transition for logging and events.
type TransitionReason string

const (
	ReasonAdminConfirm    TransitionReason = "admin_confirm"
	ReasonAdminReject     TransitionReason = "admin_reject"
	ReasonPaymentSuccess  TransitionReason = "payment_success"
	ReasonPaymentFailure  TransitionReason = "payment_failure"
	ReasonUserCancel      TransitionReason = "user_cancel"
	ReasonRenewalExhaust  TransitionReason = "renewal_exhausted"
	ReasonManualRestore   TransitionReason = "manual_restore"
	ReasonExpirySweep     TransitionReason = "expiry_sweep"
)

type Service interface {
	Create(context.Context, CreateSubscriptionRequest) (Subscription, error)
	GetByID(ctx context.Context, id string) (Subscription, error)
	GetCurrentByOwner(context.Context, GetCurrentByOwnerRequest) (Subscription, error)
	Transition(ctx context.Context, id string, target SubscriptionStatus, reason TransitionReason) error
	Cancel(ctx context.Context, id string) error
	RecordRenewalAttempt(ctx context.Context, id string, succeeded bool) (Subscription, error)
	RenewPeriod(ctx context.Context, id string) (Subscription, error)
	ListDueForRenewal(ctx context.Context, limit int) ([]Subscription, error)
	SweepExpired(ctx context.Context, limit int) (int, error)
}

var (
	ErrInvalidOwner         = errors.New("invalid_owner")
	ErrInvalidSubscription  = errors.New("invalid_subscription")
	ErrInvalidTier          = errors.New("invalid_tier")
	ErrInvalidBillingCycle  = errors.New("invalid_billing_cycle")
	ErrInvalidTargetStatus  = errors.New("invalid_target_status")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrRenewalNotDue        = errors.New("renewal_not_due")
	ErrRenewalNotEnabled    = errors.New("renewal_not_enabled")
	ErrRenewalAttemptedToday = errors.New("renewal_attempted_today")
	ErrRenewalExhausted     = errors.New("renewal_exhausted")
)
