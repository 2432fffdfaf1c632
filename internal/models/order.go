package models

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Order status values
const (
	OrderStatusPending    = "pending"
	OrderStatusPaid       = "paid"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
)

// ActiveOrderStatuses are the non-terminal statuses; at most one order per
// document may hold one of these at a time
var ActiveOrderStatuses = []string{OrderStatusPending, OrderStatusPaid, OrderStatusProcessing}

// Order links a document to a priced processing request
type Order struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	DocumentID  string `json:"document_id"`

	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreditsUsed int             `json:"credits_used"`

	ServiceType    string `json:"service_type"`
	ReductionLevel string `json:"reduction_level"`
	Urgency        string `json:"urgency"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PaidAt      *time.Time `json:"paid_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// OrderItem is a price-breakdown line entry belonging to one order
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     string          `json:"order_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
}

// OrderStatusHistory is an append-only record of one status transition
type OrderStatusHistory struct {
	ID         int64     `json:"id"`
	OrderID    string    `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Reason     string    `json:"reason,omitempty"`
	Operator   string    `json:"operator,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

const hexDigits = "0123456789ABCDEF"

// GenerateOrderNumber produces a human-readable unique order number,
// e.g. WP1714036812A3F01B
func GenerateOrderNumber() string {
	return fmt.Sprintf("WP%d%s", time.Now().Unix(), randomHex(6))
}

func randomHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = hexDigits[rand.Intn(len(hexDigits))]
	}
	return string(b)
}
