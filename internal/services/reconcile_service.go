package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"regexp"

	"github.com/eventure/backend/internal/config"
	"github.com/eventure/backend/internal/models"
	"github.com/go-redis/redis/v8"
)

// Outcome classifies what reconciliation did with an external bank record.
type Outcome string

const (
	// OutcomeMatched means a pending intent was settled by this record.
	OutcomeMatched Outcome = "MATCHED"
	// OutcomeIgnored covers everything else: no order code, no pending intent,
	// insufficient amount, or losing the completion race to a duplicate
	// delivery. Ignoring duplicates is what makes the two ingestion paths
	// convergent.
	OutcomeIgnored Outcome = "IGNORED"
)

// Word boundaries keep a 9-character suffix from matching on its first 8
// characters.
var orderCodePattern = regexp.MustCompile(`\b(UPG|DEP)[0-9A-Z]{8}\b`)

// ReconcileService matches external bank records to pending payment intents
// and applies their effects exactly once. Both ingestion paths, the webhook
// and the poller, funnel through ProcessBankRecord with identical semantics.
type ReconcileService struct {
	db      *sql.DB
	redis   *redis.Client
	intents *IntentService
	effects *EffectService
	payment *config.PaymentConfig
}

func NewReconcileService(db *sql.DB, redisClient *redis.Client, intents *IntentService, effects *EffectService, payment *config.PaymentConfig) *ReconcileService {
	return &ReconcileService{
		db:      db,
		redis:   redisClient,
		intents: intents,
		effects: effects,
		payment: payment,
	}
}

// ExtractOrderCode scans a free-text transfer description for an order code.
func ExtractOrderCode(description string) string {
	return orderCodePattern.FindString(description)
}

// ProcessBankRecord reconciles one external record. A non-nil error is always
// accompanied by OutcomeIgnored and is already contained: the intent involved
// has been marked FAILED and the caller only needs to log and move on.
func (s *ReconcileService) ProcessBankRecord(rec models.BankRecord) (Outcome, error) {
	orderCode := ExtractOrderCode(rec.Description)
	if orderCode == "" {
		return OutcomeIgnored, nil
	}

	intent, err := s.intents.FindPendingByOrderCode(orderCode)
	if err == sql.ErrNoRows {
		// Already processed, swept, or never ours.
		return OutcomeIgnored, nil
	}
	if err != nil {
		return OutcomeIgnored, err
	}

	if rec.Amount < intent.Amount {
		log.Printf("[RECONCILE] Ignored order %s: insufficient amount %.0f < %.0f",
			orderCode, rec.Amount, intent.Amount)
		return OutcomeIgnored, nil
	}

	log.Printf("[RECONCILE] Processing matched transaction for order code: %s", orderCode)

	tx, err := s.db.Begin()
	if err != nil {
		return OutcomeIgnored, err
	}
	defer tx.Rollback()

	if err := s.effects.ApplyTx(tx, intent); err != nil {
		tx.Rollback()
		s.intents.MarkFailed(intent.ID)
		log.Printf("[RECONCILE] Failed to process transaction %s for order %s: %v",
			intent.ID, orderCode, err)
		return OutcomeIgnored, err
	}

	if err := s.intents.CompleteTx(tx, intent.ID); err != nil {
		tx.Rollback()
		if err == ErrIntentNotPending {
			// A concurrent delivery of the same order code won the
			// compare-and-swap; our unit rolled back without effect.
			log.Printf("[RECONCILE] Order %s already completed concurrently", orderCode)
			return OutcomeIgnored, nil
		}
		s.intents.MarkFailed(intent.ID)
		return OutcomeIgnored, err
	}

	if err := tx.Commit(); err != nil {
		s.intents.MarkFailed(intent.ID)
		return OutcomeIgnored, err
	}

	log.Printf("[RECONCILE] Successfully processed and completed order: %s", orderCode)
	s.queueNotification(intent)
	return OutcomeMatched, nil
}

// queueNotification hands the settled intent to the notification worker. Runs
// after commit; a queue failure never undoes the settlement.
func (s *ReconcileService) queueNotification(intent *models.PaymentIntent) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":      "PAYMENT_COMPLETED",
		"intentId":  intent.ID,
		"userId":    intent.UserID,
		"orderCode": intent.OrderCode,
		"amount":    intent.Amount,
	})
	if err != nil {
		return
	}
	if err := s.redis.RPush(context.Background(), "notification_queue", payload).Err(); err != nil {
		log.Printf("[RECONCILE] Failed to queue notification for %s: %v", intent.OrderCode, err)
	}
}

// HandleWebhook ingests pushed bank records
// @Summary Bank transaction webhook
// @Description Receive bank transfer notifications; an empty payload is a connectivity test
// @Tags webhooks
// @Accept json
// @Produce json
// @Param Secure-Token header string true "Shared webhook secret"
// @Success 200 {object} object{success=bool}
// @Failure 401 {object} ErrorResponse
// @Router /webhooks/bank [post]
func (s *ReconcileService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Secure-Token") != s.payment.WebhookSecret || s.payment.WebhookSecret == "" {
		SendErrorResponse(w, "Invalid secure token", http.StatusUnauthorized, nil)
		return
	}

	var payload struct {
		Data []models.BankRecord `json:"data"`
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1_048_576))
	if err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
			return
		}
	}

	// The bank sends an empty payload as a connectivity test when the webhook
	// is registered.
	if payload.Data == nil {
		log.Printf("[WEBHOOK] Received a test or empty webhook")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"success": true})
		return
	}

	log.Printf("[WEBHOOK] Received webhook with %d transactions", len(payload.Data))
	for _, rec := range payload.Data {
		if _, err := s.ProcessBankRecord(rec); err != nil {
			// Contained per record; the rest of the batch still runs.
			log.Printf("[WEBHOOK] Record failed: %v", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}
