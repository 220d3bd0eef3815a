package services

import (
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/eventure/backend/internal/config"
	"github.com/eventure/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// Order codes are a kind prefix plus 8 characters drawn from this alphabet,
// generated once at intent creation and embedded in the transfer description.
const (
	orderCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	orderCodeLength   = 8
)

// IntentService owns the payment intent store: creation with order codes and
// the PENDING -> COMPLETED/FAILED transitions every other component relies on.
type IntentService struct {
	db        *sql.DB
	effects   *EffectService
	qr        *QRService
	payment   *config.PaymentConfig
	validator *ValidationHelper
}

func NewIntentService(db *sql.DB, effects *EffectService, qr *QRService, payment *config.PaymentConfig) *IntentService {
	return &IntentService{
		db:        db,
		effects:   effects,
		qr:        qr,
		payment:   payment,
		validator: NewValidationHelper(),
	}
}

// PaymentInstructions is what a payer needs to complete the bank transfer; the
// description must carry the order code verbatim.
type PaymentInstructions struct {
	Amount        float64 `json:"amount"`
	AccountName   string  `json:"accountName"`
	AccountNumber string  `json:"accountNumber"`
	BankBin       string  `json:"bankBin"`
	Template      string  `json:"template"`
	Description   string  `json:"description"`
	QRImage       string  `json:"qrImage,omitempty"`
}

func generateOrderCode(prefix string) string {
	b := make([]byte, orderCodeLength)
	rand.Read(b)
	code := make([]byte, orderCodeLength)
	for i, v := range b {
		code[i] = orderCodeAlphabet[int(v)%len(orderCodeAlphabet)]
	}
	return prefix + string(code)
}

// CreateUpgradeIntent stores a PENDING upgrade intent and returns the transfer
// instructions for it.
func (s *IntentService) CreateUpgradeIntent(userID, userEmail, packageName string, amount float64) (*PaymentInstructions, error) {
	if !s.payment.Configured() {
		return nil, ErrPaymentNotConfigured
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	orderCode := generateOrderCode(models.OrderCodePrefixUpgrade)
	description := fmt.Sprintf("Upgrade to %s for user %s", packageName, userEmail)

	_, err := s.db.Exec(`
		INSERT INTO payment_intents (id, user_id, amount, order_code, kind, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), userID, amount, orderCode, models.IntentKindUpgrade,
		description, models.IntentStatusPending, time.Now())
	if err != nil {
		return nil, err
	}

	return s.instructionsFor(orderCode, amount)
}

// CreateDepositIntentTx stores a PENDING deposit intent inside the caller's
// transaction, so the intent and its registration appear or vanish together.
func (s *IntentService) CreateDepositIntentTx(tx *sql.Tx, userID, eventID string, amount float64) (*models.PaymentIntent, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	intent := &models.PaymentIntent{
		ID:          uuid.New().String(),
		UserID:      userID,
		Amount:      amount,
		OrderCode:   generateOrderCode(models.OrderCodePrefixDeposit),
		Kind:        models.IntentKindDeposit,
		Description: fmt.Sprintf("Deposit for event %s", eventID),
		Status:      models.IntentStatusPending,
		CreatedAt:   time.Now(),
	}

	_, err := tx.Exec(`
		INSERT INTO payment_intents (id, user_id, amount, order_code, kind, description, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		intent.ID, intent.UserID, intent.Amount, intent.OrderCode, intent.Kind,
		intent.Description, intent.Status, intent.CreatedAt)
	if err != nil {
		return nil, err
	}
	return intent, nil
}

func (s *IntentService) instructionsFor(orderCode string, amount float64) (*PaymentInstructions, error) {
	instructions := &PaymentInstructions{
		Amount:        amount,
		AccountName:   s.payment.AccountName,
		AccountNumber: s.payment.AccountNumber,
		BankBin:       s.payment.BankBin,
		Template:      s.payment.QRTemplate,
		Description:   orderCode,
	}

	if s.qr != nil {
		image, err := s.qr.PaymentQR(s.payment, orderCode, amount)
		if err != nil {
			// The payer can still transfer manually with the account details.
			log.Printf("[INTENT] Failed to render payment QR for %s: %v", orderCode, err)
		} else {
			instructions.QRImage = image
		}
	}
	return instructions, nil
}

// FindPendingByOrderCode looks up an intent by exact order code and PENDING
// status. A miss covers already-processed, unknown, and expired codes alike.
func (s *IntentService) FindPendingByOrderCode(orderCode string) (*models.PaymentIntent, error) {
	return s.scanIntent(s.db.QueryRow(`
		SELECT id, user_id, amount, order_code, kind, description, status, created_at
		FROM payment_intents
		WHERE order_code = $1 AND status = $2`,
		orderCode, models.IntentStatusPending))
}

// FindPendingByID is the administrative variant used by manual confirmation.
func (s *IntentService) FindPendingByID(id string) (*models.PaymentIntent, error) {
	return s.scanIntent(s.db.QueryRow(`
		SELECT id, user_id, amount, order_code, kind, description, status, created_at
		FROM payment_intents
		WHERE id = $1 AND status = $2`,
		id, models.IntentStatusPending))
}

func (s *IntentService) scanIntent(row *sql.Row) (*models.PaymentIntent, error) {
	intent := &models.PaymentIntent{}
	err := row.Scan(&intent.ID, &intent.UserID, &intent.Amount, &intent.OrderCode,
		&intent.Kind, &intent.Description, &intent.Status, &intent.CreatedAt)
	if err != nil {
		return nil, err
	}
	return intent, nil
}

// CompleteTx moves the intent PENDING -> COMPLETED. The status predicate makes
// the update a compare-and-swap: of two units racing on the same order code,
// only one can take the row out of PENDING; the other sees zero rows and must
// roll back.
func (s *IntentService) CompleteTx(tx *sql.Tx, intentID string) error {
	result, err := tx.Exec(`
		UPDATE payment_intents
		SET status = $1
		WHERE id = $2 AND status = $3`,
		models.IntentStatusCompleted, intentID, models.IntentStatusPending)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrIntentNotPending
	}
	return nil
}

// MarkFailed is the follow-up write after a rolled-back effect unit. Still
// PENDING-guarded so it cannot clobber a concurrent completion.
func (s *IntentService) MarkFailed(intentID string) {
	_, err := s.db.Exec(`
		UPDATE payment_intents
		SET status = $1
		WHERE id = $2 AND status = $3`,
		models.IntentStatusFailed, intentID, models.IntentStatusPending)
	if err != nil {
		log.Printf("[INTENT] Failed to mark intent %s as FAILED: %v", intentID, err)
	}
}

// CreateUpgrade creates an upgrade payment intent
// @Summary Initiate a role upgrade payment
// @Description Create a PENDING upgrade intent and return bank transfer instructions
// @Tags transactions
// @Accept json
// @Produce json
// @Success 201 {object} PaymentInstructions
// @Failure 400 {object} ErrorResponse
// @Router /transactions/upgrade [post]
func (s *IntentService) CreateUpgrade(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value("userID").(string)
	userEmail, _ := r.Context().Value("userEmail").(string)
	if userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		PackageName  string `json:"packageName" validate:"required"`
		PackagePrice string `json:"packagePrice" validate:"required"`
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := s.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	// Prices arrive dot-grouped, e.g. "100.000".
	amount, err := strconv.ParseFloat(strings.ReplaceAll(req.PackagePrice, ".", ""), 64)
	if err != nil || amount <= 0 {
		SendErrorResponse(w, "Invalid package price", http.StatusBadRequest, nil)
		return
	}

	instructions, err := s.CreateUpgradeIntent(userID, userEmail, req.PackageName, amount)
	if err != nil {
		if err == ErrPaymentNotConfigured {
			SendErrorResponse(w, err.Error(), http.StatusInternalServerError, nil)
			return
		}
		SendErrorResponse(w, "Failed to create transaction", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(instructions)
}

// GetStatusByOrderCode lets the payer poll for settlement
// @Summary Get intent status by order code
// @Tags transactions
// @Produce json
// @Param orderCode path string true "Order code"
// @Success 200 {object} object{status=string}
// @Failure 404 {object} ErrorResponse
// @Router /transactions/status/{orderCode} [get]
func (s *IntentService) GetStatusByOrderCode(w http.ResponseWriter, r *http.Request) {
	orderCode := chi.URLParam(r, "orderCode")

	var status string
	err := s.db.QueryRow(`SELECT status FROM payment_intents WHERE order_code = $1`, orderCode).
		Scan(&status)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, fmt.Sprintf("Transaction with order code %s not found", orderCode), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

// ListIntents lists all payment intents, newest first
// @Summary List payment intents
// @Tags admin
// @Produce json
// @Success 200 {array} models.PaymentIntent
// @Router /admin/transactions [get]
func (s *IntentService) ListIntents(w http.ResponseWriter, r *http.Request) {
	rows, err := s.db.Query(`
		SELECT id, user_id, amount, order_code, kind, description, status, created_at
		FROM payment_intents
		ORDER BY created_at DESC`)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	intents := []models.PaymentIntent{}
	for rows.Next() {
		var intent models.PaymentIntent
		if err := rows.Scan(&intent.ID, &intent.UserID, &intent.Amount, &intent.OrderCode,
			&intent.Kind, &intent.Description, &intent.Status, &intent.CreatedAt); err != nil {
			SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
			return
		}
		intents = append(intents, intent)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intents)
}

// ManuallyConfirm force-completes a still-PENDING intent
// @Summary Manually confirm a pending intent
// @Description Operator override for payments the feed never matched
// @Tags admin
// @Produce json
// @Param id path string true "Intent ID"
// @Success 200 {object} object{message=string}
// @Failure 404 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /admin/transactions/{id}/confirm [post]
func (s *IntentService) ManuallyConfirm(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "id")

	intent, err := s.FindPendingByID(intentID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, fmt.Sprintf("Pending transaction with ID %s not found", intentID), http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[INTENT] Manually processing transaction for order code: %s", intent.OrderCode)

	tx, err := s.db.Begin()
	if err != nil {
		SendErrorResponse(w, "Failed to confirm transaction", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	// The override always applies the upgrade effect: the operator path exists
	// for role payments that arrived without a matchable description.
	upgrade := *intent
	upgrade.Kind = models.IntentKindUpgrade
	if err := s.effects.ApplyTx(tx, &upgrade); err != nil {
		tx.Rollback()
		s.MarkFailed(intent.ID)
		log.Printf("[INTENT] Failed to process transaction %s for order %s: %v", intent.ID, intent.OrderCode, err)
		SendErrorResponse(w, "Failed to confirm transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := s.CompleteTx(tx, intent.ID); err != nil {
		tx.Rollback()
		if err != ErrIntentNotPending {
			s.MarkFailed(intent.ID)
		}
		log.Printf("[INTENT] Failed to complete transaction %s: %v", intent.ID, err)
		SendErrorResponse(w, "Failed to confirm transaction", http.StatusInternalServerError, nil)
		return
	}

	if err := tx.Commit(); err != nil {
		s.MarkFailed(intent.ID)
		log.Printf("[INTENT] Failed to commit confirmation of %s: %v", intent.ID, err)
		SendErrorResponse(w, "Failed to confirm transaction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[INTENT] Successfully processed and completed order: %s", intent.OrderCode)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Transaction confirmed successfully"})
}
