package models

import (
	"database/sql"
	"time"
)

// Withdrawal statuses. PENDING exits to COMPLETED (approve) or FAILED (reject);
// both exits are terminal.
const (
	WithdrawalStatusPending   = "PENDING"
	WithdrawalStatusCompleted = "COMPLETED"
	WithdrawalStatusFailed    = "FAILED"
)

// Wallet holds an organizer's settled deposit earnings. One per user; the
// balance must never go negative.
type Wallet struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"userId" db:"user_id"`
	Balance   float64   `json:"balance" db:"balance"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// WithdrawalRequest records a payout request. RequestedAmount is what left the
// wallet; Amount is what is payable after commission. RequestedAmount is
// nullable because rows created before commission accounting only stored the
// post-commission amount.
type WithdrawalRequest struct {
	ID              string          `json:"id" db:"id"`
	OrganizerID     string          `json:"organizerId" db:"organizer_id"`
	RequestedAmount sql.NullFloat64 `json:"requestedAmount" db:"requested_amount"`
	Amount          float64         `json:"amount" db:"amount"`
	PayoutAccountID string          `json:"payoutAccountId" db:"payout_account_id"`
	Status          string          `json:"status" db:"status"`
	ProcessedAt     *time.Time      `json:"processedAt" db:"processed_at"`
	CreatedAt       time.Time       `json:"createdAt" db:"created_at"`
}

// PayoutAccount is the bank account a withdrawal pays out to. One per user.
type PayoutAccount struct {
	ID            string    `json:"id" db:"id"`
	UserID        string    `json:"userId" db:"user_id"`
	BankName      string    `json:"bankName" db:"bank_name"`
	AccountName   string    `json:"accountName" db:"account_name"`
	AccountNumber string    `json:"accountNumber" db:"account_number"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
