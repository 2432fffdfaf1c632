package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payment status values
const (
	PaymentStatusPending    = "pending"
	PaymentStatusProcessing = "processing"
	PaymentStatusCompleted  = "completed"
	PaymentStatusFailed     = "failed"
	PaymentStatusCancelled  = "cancelled"
	PaymentStatusRefunded   = "refunded"
)

// Payment methods
const (
	PaymentMethodAlipay = "alipay"
	PaymentMethodWechat = "wechat"
	PaymentMethodBank   = "bank"
	PaymentMethodMock   = "mock"
)

// RechargePackage is immutable catalog data for credit top-ups
type RechargePackage struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Amount       decimal.Decimal `json:"amount"`
	Credits      int             `json:"credits"`
	BonusCredits int             `json:"bonus_credits"`
	IsPopular    bool            `json:"is_popular"`
	SortOrder    int             `json:"sort_order"`
	IsActive     bool            `json:"is_active"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TotalCredits is the credit amount granted when the package settles
func (p *RechargePackage) TotalCredits() int {
	return p.Credits + p.BonusCredits
}

// Payment is one credit top-up attempt. Credit amounts are snapshotted from
// the package at creation time so later catalog edits don't affect it.
type Payment struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	PackageID int64  `json:"package_id"`

	PaymentMethod string          `json:"payment_method"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`

	TransactionID         string `json:"transaction_id"`
	ExternalTransactionID string `json:"external_transaction_id,omitempty"`

	CreditsEarned      int `json:"credits_earned"`
	BonusCreditsEarned int `json:"bonus_credits_earned"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
}

// PaymentLog is an append-only audit entry for one payment action
type PaymentLog struct {
	ID        int64     `json:"id"`
	PaymentID string    `json:"payment_id"`
	Action    string    `json:"action"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"` // JSON blob, optional
	CreatedAt time.Time `json:"created_at"`
}

// Payment log actions
const (
	PaymentActionCreateOrder = "create_order"
	PaymentActionSuccess     = "payment_success"
	PaymentActionCancel      = "cancel_payment"
)

// RechargeRecord is the permanent receipt produced when a payment settles;
// one-to-one with its payment
type RechargeRecord struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	PaymentID       string          `json:"payment_id"`
	Amount          decimal.Decimal `json:"amount"`
	CreditsReceived int             `json:"credits_received"`
	BonusCredits    int             `json:"bonus_credits"`
	CreatedAt       time.Time       `json:"created_at"`
}

// GenerateTransactionID produces a human-readable unique transaction id,
// e.g. PAY1714036812A3F01B2C
func GenerateTransactionID() string {
	return fmt.Sprintf("PAY%d%s", time.Now().Unix(), randomHex(8))
}
