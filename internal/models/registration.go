package models

import (
	"database/sql"
	"time"
)

// Registration statuses. PENDING registrations are created when a paid
// registration is initiated and either advance to DEPOSITED (matched deposit
// intent) or are deleted by the expiry sweeper.
const (
	RegistrationStatusPending    = "PENDING"
	RegistrationStatusDeposited  = "DEPOSITED"
	RegistrationStatusRegistered = "REGISTERED"
)

const (
	EventStatusDraft     = "DRAFT"
	EventStatusPublished = "PUBLISHED"
)

// Registration links a user to an event, unique per (event, user) pair. A paid
// registration references the deposit intent that must settle before it counts.
type Registration struct {
	ID        string         `json:"id" db:"id"`
	EventID   string         `json:"eventId" db:"event_id"`
	UserID    string         `json:"userId" db:"user_id"`
	Status    string         `json:"status" db:"status"`
	Phone     sql.NullString `json:"phone" db:"phone"`
	IntentID  sql.NullString `json:"transactionId" db:"transaction_id"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}

// Event is the read/write surface this core touches on the externally owned
// event record. Capacity is enforced at intent creation; reconciliation only
// increments the registered count.
type Event struct {
	ID              string  `json:"id" db:"id"`
	OrganizerID     string  `json:"organizerId" db:"organizer_id"`
	Status          string  `json:"status" db:"status"`
	Price           float64 `json:"price" db:"price"`
	Capacity        int     `json:"capacity" db:"capacity"`
	RegisteredCount int     `json:"registeredCount" db:"registered_count"`
}
