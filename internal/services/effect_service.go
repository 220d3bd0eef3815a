package services

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/eventure/backend/internal/models"
)

// EffectService applies the downstream state changes of a matched payment
// intent. Every effect runs inside the caller's transaction together with the
// intent's COMPLETED transition, so the at-most-once guarantee lives in exactly
// one place: the status-conditional update the caller performs on the intent.
type EffectService struct {
	db     *sql.DB
	wallet *WalletService
}

func NewEffectService(db *sql.DB, wallet *WalletService) *EffectService {
	return &EffectService{db: db, wallet: wallet}
}

// ApplyTx dispatches on the kind stored on the intent at order-code generation
// time.
func (s *EffectService) ApplyTx(tx *sql.Tx, intent *models.PaymentIntent) error {
	switch intent.Kind {
	case models.IntentKindUpgrade:
		return s.upgradeRoleTx(tx, intent.UserID)
	case models.IntentKindDeposit:
		return s.depositCreditTx(tx, intent)
	default:
		return fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}

// upgradeRoleTx elevates the paying user to organizer. Idempotent: a user who
// is already an organizer is left untouched.
func (s *EffectService) upgradeRoleTx(tx *sql.Tx, userID string) error {
	var role string
	err := tx.QueryRow(`SELECT role FROM users WHERE id = $1`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return fmt.Errorf("user %s not found", userID)
	}
	if err != nil {
		return err
	}

	if role == models.RoleOrganizer {
		return nil
	}

	_, err = tx.Exec(`UPDATE users SET role = $1, updated_at = NOW() WHERE id = $2`,
		models.RoleOrganizer, userID)
	return err
}

// depositCreditTx settles a paid event registration: the registration moves
// PENDING -> DEPOSITED, the event's registered count goes up by one, and the
// organizer's wallet is credited with the intent amount.
func (s *EffectService) depositCreditTx(tx *sql.Tx, intent *models.PaymentIntent) error {
	var regID, eventID, organizerID string
	err := tx.QueryRow(`
		SELECT r.id, r.event_id, e.organizer_id
		FROM registrations r
		JOIN events e ON e.id = r.event_id
		WHERE r.transaction_id = $1`, intent.ID).
		Scan(&regID, &eventID, &organizerID)
	if err == sql.ErrNoRows {
		return ErrRegistrationMissing
	}
	if err != nil {
		return err
	}

	result, err := tx.Exec(`
		UPDATE registrations
		SET status = $1
		WHERE id = $2 AND status = $3`,
		models.RegistrationStatusDeposited, regID, models.RegistrationStatusPending)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("registration %s is not pending", regID)
	}

	if _, err := tx.Exec(`
		UPDATE events
		SET registered_count = registered_count + 1
		WHERE id = $1`, eventID); err != nil {
		return err
	}

	if err := s.wallet.CreditTx(tx, organizerID, intent.Amount); err != nil {
		return err
	}

	log.Printf("[EFFECT] Credited %.0f to wallet of organizer %s for intent %s",
		intent.Amount, organizerID, intent.ID)
	return nil
}
