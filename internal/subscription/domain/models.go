// Package domain contains persistence models for subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/weldvault/weldvault/internal/plan"
	"gorm.io/datatypes"
)

// SubscriptionStatus represents lifecycle states for a subscription.
//
// RENEWAL_FAILED is a distinct stored state: the auto-renewal retry budget
// is exhausted but the record was not cancelled by the user, so a late
// manual payment can restore ACTIVE without a re-purchase.
type SubscriptionStatus string

const (
	SubscriptionStatusPendingConfirm SubscriptionStatus = "PENDING_CONFIRM"
	SubscriptionStatusActive         SubscriptionStatus = "ACTIVE"
	SubscriptionStatusExpired        SubscriptionStatus = "EXPIRED"
	SubscriptionStatusCanceled       SubscriptionStatus = "CANCELED"
	SubscriptionStatusRejected       SubscriptionStatus = "REJECTED"
	SubscriptionStatusRenewalFailed  SubscriptionStatus = "RENEWAL_FAILED"
)

// OwnerType distinguishes personal subscriptions from company ones.
type OwnerType string

const (
	OwnerTypeUser    OwnerType = "user"
	OwnerTypeCompany OwnerType = "company"
)

// Valid reports whether the owner type is one of the known values.
func (o OwnerType) Valid() bool {
	return o == OwnerTypeUser || o == OwnerTypeCompany
}

// BillingCycle is the renewal period of a subscription.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "MONTHLY"
	BillingCycleYearly  BillingCycle = "YEARLY"
)

// NextPeriodEnd advances a period end by one billing cycle.
func (c BillingCycle) NextPeriodEnd(from time.Time) time.Time {
	switch c {
	case BillingCycleYearly:
		return from.AddDate(1, 0, 0)
	default:
		return from.AddDate(0, 1, 0)
	}
}

// MaxRenewalAttempts bounds the auto-renewal retry policy: one attempt per
// calendar day, three days total.
const MaxRenewalAttempts = 3

// Subscription captures an owner's billing agreement.
type Subscription struct {
	ID                  snowflake.ID       `gorm:"primaryKey"`
	OwnerType           OwnerType          `gorm:"type:text;not null;index:idx_subscriptions_owner"`
	OwnerID             string             `gorm:"type:text;not null;index:idx_subscriptions_owner"`
	PlanTier            plan.Tier          `gorm:"type:text;not null"`
	BillingCycle        BillingCycle       `gorm:"type:text;not null"`
	Status              SubscriptionStatus `gorm:"type:text;not null;index"`
	StartAt             time.Time          `gorm:"not null"`
	EndAt               time.Time          `gorm:"not null;index"`
	AutoRenew           bool               `gorm:"not null;default:false"`
	RenewalAttemptCount int16              `gorm:"not null;default:0"`
	LastAttemptAt       *time.Time         `gorm:""`
	ActivatedAt         *time.Time         `gorm:""`
	CanceledAt          *time.Time         `gorm:""`
	Metadata            datatypes.JSONMap  `gorm:"type:jsonb"`
	CreatedAt           time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt           time.Time          `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// EffectiveStatus is the pull-evaluated view of the lifecycle: expiry is
// decided by comparing now to the period end at read time, never by a
// background sweeper. A sweeper may refresh the stored field for UX but is
// not required for correctness.
func (s Subscription) EffectiveStatus(now time.Time) SubscriptionStatus {
	switch s.Status {
	case SubscriptionStatusActive:
		if now.After(s.EndAt) {
			return SubscriptionStatusExpired
		}
		return SubscriptionStatusActive
	case SubscriptionStatusCanceled:
		// Cancellation only disables auto-renew; the paid period stays valid.
		if now.After(s.EndAt) {
			return SubscriptionStatusExpired
		}
		return SubscriptionStatusActive
	case SubscriptionStatusRenewalFailed:
		return SubscriptionStatusExpired
	default:
		return s.Status
	}
}

// GrantsEntitlement reports whether the subscription grants its plan tier
// at the given instant. Anything other than an effective ACTIVE (including
// PENDING_CONFIRM; entitlement is never granted preemptively) degrades the
// owner to the free tier.
func (s Subscription) GrantsEntitlement(now time.Time) bool {
	return s.EffectiveStatus(now) == SubscriptionStatusActive
}

// InRenewalWindow reports whether the subscription is close enough to its
// period end for an auto-renewal attempt (three calendar days).
func (s Subscription) InRenewalWindow(now time.Time) bool {
	return !now.Before(s.EndAt.AddDate(0, 0, -MaxRenewalAttempts))
}
