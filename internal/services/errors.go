package services

import "errors"

var (
	// ErrInvalidAmount rejects non-positive amounts on user-initiated operations.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientBalance is returned when a conditional wallet debit matches
	// no row, i.e. the balance check and the decrement failed as one unit.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrPayoutAccountRequired gates withdrawal creation on a configured payout
	// account.
	ErrPayoutAccountRequired = errors.New("payout account not set up")

	// ErrWithdrawalNotPending means the request does not exist or already left
	// the PENDING state.
	ErrWithdrawalNotPending = errors.New("pending withdrawal request not found")

	// ErrIntentNotPending is the CAS loss signal: the intent row was no longer
	// PENDING when the status-conditional update ran.
	ErrIntentNotPending = errors.New("payment intent is not pending")

	// ErrRegistrationMissing is an invariant violation: a deposit intent matched
	// but no registration references it. Fatal for that intent only.
	ErrRegistrationMissing = errors.New("no registration linked to deposit intent")

	ErrEventNotPublished    = errors.New("event is not published")
	ErrEventNotPaid         = errors.New("event is not a paid event")
	ErrEventFull            = errors.New("event is full")
	ErrAlreadyRegistered    = errors.New("user already registered for this event")
	ErrPaymentNotConfigured = errors.New("bank transfer settings are not configured")
)
