package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/eventure/backend/internal/models"
	"github.com/lib/pq"
)

// Pending intents older than IntentExpiry are abandoned payments; the sweeper
// discards them every SweepInterval along with their dependent pending
// registrations.
const (
	IntentExpiry  = 10 * time.Minute
	SweepInterval = 5 * time.Minute
)

// SweeperService removes stale never-paid intents. The delete predicates
// re-check status at delete time, so a sweep racing a reconciliation that just
// completed the same intent leaves the completed row alone.
type SweeperService struct {
	db *sql.DB
}

func NewSweeperService(db *sql.DB) *SweeperService {
	return &SweeperService{db: db}
}

// SweepExpiredIntents is the periodic job body.
func (s *SweeperService) SweepExpiredIntents(ctx context.Context) {
	log.Printf("[SWEEPER] Running job to clean up expired pending transactions")
	cutoff := time.Now().Add(-IntentExpiry)

	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM payment_intents
		WHERE status = $1 AND created_at < $2`,
		models.IntentStatusPending, cutoff)
	if err != nil {
		log.Printf("[SWEEPER] Failed to select expired intents: %v", err)
		return
	}

	var expiredIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			log.Printf("[SWEEPER] Failed to scan expired intent: %v", err)
			return
		}
		expiredIDs = append(expiredIDs, id)
	}
	rows.Close()

	if len(expiredIDs) == 0 {
		log.Printf("[SWEEPER] No expired pending transactions found")
		return
	}

	log.Printf("[SWEEPER] Found %d expired transactions to clean up", len(expiredIDs))

	tx, err := s.db.Begin()
	if err != nil {
		log.Printf("[SWEEPER] Failed to begin cleanup transaction: %v", err)
		return
	}
	defer tx.Rollback()

	// Dependent pending registrations go first; the status filter keeps a
	// registration that got DEPOSITED since the select out of reach.
	regResult, err := tx.Exec(`
		DELETE FROM registrations
		WHERE transaction_id = ANY($1) AND status = $2`,
		pq.Array(expiredIDs), models.RegistrationStatusPending)
	if err != nil {
		log.Printf("[SWEEPER] Failed to delete pending registrations: %v", err)
		return
	}
	deletedRegs, _ := regResult.RowsAffected()
	log.Printf("[SWEEPER] Deleted %d associated pending registrations", deletedRegs)

	// Same re-check on the intents: one completed after the select survives.
	txResult, err := tx.Exec(`
		DELETE FROM payment_intents
		WHERE id = ANY($1) AND status = $2`,
		pq.Array(expiredIDs), models.IntentStatusPending)
	if err != nil {
		log.Printf("[SWEEPER] Failed to delete expired intents: %v", err)
		return
	}
	deletedTxs, _ := txResult.RowsAffected()

	if err := tx.Commit(); err != nil {
		log.Printf("[SWEEPER] Failed to commit cleanup: %v", err)
		return
	}

	log.Printf("[SWEEPER] Successfully deleted %d expired transactions", deletedTxs)
}
