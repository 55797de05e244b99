// Package domain holds the payment order model and its confirmation
// lifecycle.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// OrderStatus is the confirmation state of a payment order.
//
// SUCCESS and REJECTED are terminal on the server: a terminal order is
// never reopened, a retry creates a new order. TIMEOUT is a client-side
// poll outcome only and is never stored; the server order stays
// PENDING_CONFIRM and may still resolve later through the admin path.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "CREATED"
	OrderStatusPendingConfirm OrderStatus = "PENDING_CONFIRM"
	OrderStatusSuccess        OrderStatus = "SUCCESS"
	OrderStatusRejected       OrderStatus = "REJECTED"
	OrderStatusTimeout        OrderStatus = "TIMEOUT"
)

// IsTerminal reports whether the stored status can never change again.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusSuccess || s == OrderStatusRejected
}

// Method is the payment rail presented to the user. The rail itself is
// external; it only decides which payload shape the order carries.
type Method string

const (
	MethodRedirect Method = "redirect"
	MethodQR       Method = "qr"
)

// PaymentOrder is one payment attempt for a plan purchase or renewal.
type PaymentOrder struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TransactionID  string       `gorm:"type:text;not null;uniqueIndex" json:"transaction_id"`
	OwnerType      string       `gorm:"type:text;not null" json:"owner_type"`
	OwnerID        string       `gorm:"type:text;not null;index" json:"owner_id"`
	PlanTier       string       `gorm:"type:text;not null" json:"plan_tier"`
	BillingCycle   string       `gorm:"type:text;not null" json:"billing_cycle"`
	Method         Method       `gorm:"type:text;not null" json:"method"`
	AmountCents    int64        `gorm:"not null" json:"amount_cents"`
	Currency       string       `gorm:"type:text;not null" json:"currency"`
	Status         OrderStatus  `gorm:"type:text;not null;index" json:"status"`
	SubscriptionID snowflake.ID `gorm:"index" json:"subscription_id"`
	RedirectURL    *string      `gorm:"type:text" json:"redirect_url,omitempty"`
	QRPayload      *string      `gorm:"type:text" json:"qr_payload,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt      time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	ConfirmedAt    *time.Time   `json:"confirmed_at,omitempty"`
	RejectedAt     *time.Time   `json:"rejected_at,omitempty"`
}

// TableName sets the database table name.
func (PaymentOrder) TableName() string { return "payment_orders" }
