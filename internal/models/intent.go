package models

import (
	"time"
)

// Intent statuses. Transitions are monotonic: PENDING may move to COMPLETED or
// FAILED exactly once; neither terminal status transitions anywhere.
const (
	IntentStatusPending   = "PENDING"
	IntentStatusCompleted = "COMPLETED"
	IntentStatusFailed    = "FAILED"
)

// Intent kinds, decoded once at order-code generation time and stored on the row
// so reconciliation dispatches on a typed field instead of re-parsing prefixes.
const (
	IntentKindUpgrade = "UPGRADE"
	IntentKindDeposit = "DEPOSIT"
)

// Order code prefixes embedded in the payment description shown to the payer.
const (
	OrderCodePrefixUpgrade = "UPG"
	OrderCodePrefixDeposit = "DEP"
)

// PaymentIntent represents an expected incoming bank transfer. The order code is
// immutable once generated and is the only correlation key between an external
// bank record and this row.
type PaymentIntent struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"userId" db:"user_id"`
	Amount      float64   `json:"amount" db:"amount"`
	OrderCode   string    `json:"orderCode" db:"order_code"`
	Kind        string    `json:"kind" db:"kind"`
	Description string    `json:"description" db:"description"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
}

// BankRecord is the slice of an external bank transaction this core consumes:
// the free-text description scanned for an order code, and the paid amount.
type BankRecord struct {
	ID          int64   `json:"id"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	When        string  `json:"when,omitempty"`
	Reference   string  `json:"tid,omitempty"`
}
