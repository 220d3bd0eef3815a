package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/eventure/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// CommissionRate is the fixed fraction deducted from a withdrawal's requested
// amount before the net payable amount is recorded.
const CommissionRate = 0.15

// WithdrawalService runs the withdrawal state machine on top of the wallet
// ledger: PENDING at creation (with an immediate debit of the full requested
// amount), then one terminal transition to COMPLETED (approve, funds already
// gone) or FAILED (reject, full refund).
type WithdrawalService struct {
	db        *sql.DB
	wallet    *WalletService
	payouts   *PayoutAccountService
	iso       *ISO20022Service
	validator *ValidationHelper
}

func NewWithdrawalService(db *sql.DB, wallet *WalletService, payouts *PayoutAccountService, iso *ISO20022Service) *WithdrawalService {
	return &WithdrawalService{
		db:        db,
		wallet:    wallet,
		payouts:   payouts,
		iso:       iso,
		validator: NewValidationHelper(),
	}
}

// CreateRequest debits the wallet and records the request as one unit.
func (s *WithdrawalService) CreateRequest(organizerID string, requestedAmount float64) (*models.WithdrawalRequest, error) {
	if requestedAmount <= 0 {
		return nil, ErrInvalidAmount
	}

	payoutAccount, err := s.payouts.GetForUser(organizerID)
	if err == sql.ErrNoRows {
		return nil, ErrPayoutAccountRequired
	}
	if err != nil {
		return nil, err
	}

	commission := requestedAmount * CommissionRate
	finalAmount := requestedAmount - commission

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Conditional decrement doubles as the balance check.
	if err := s.wallet.DebitTx(tx, organizerID, requestedAmount); err != nil {
		return nil, err
	}

	request := &models.WithdrawalRequest{
		ID:              uuid.New().String(),
		OrganizerID:     organizerID,
		RequestedAmount: sql.NullFloat64{Float64: requestedAmount, Valid: true},
		Amount:          finalAmount,
		PayoutAccountID: payoutAccount.ID,
		Status:          models.WithdrawalStatusPending,
		CreatedAt:       time.Now(),
	}

	_, err = tx.Exec(`
		INSERT INTO withdrawal_requests
		(id, organizer_id, requested_amount, amount, payout_account_id, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		request.ID, request.OrganizerID, requestedAmount, finalAmount,
		request.PayoutAccountID, request.Status, request.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("[WITHDRAWAL] Created request %s: requested %.0f, payable %.0f after commission",
		request.ID, requestedAmount, finalAmount)
	return request, nil
}

// Approve completes a pending request. Funds left the wallet at creation; the
// only state change here is the terminal transition plus the payout
// instruction handed to the rail.
func (s *WithdrawalService) Approve(requestID string) (*models.WithdrawalRequest, error) {
	request, err := s.fetchRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.WithdrawalStatusPending {
		return nil, ErrWithdrawalNotPending
	}

	now := time.Now()
	result, err := s.db.Exec(`
		UPDATE withdrawal_requests
		SET status = $1, processed_at = $2
		WHERE id = $3 AND status = $4`,
		models.WithdrawalStatusCompleted, now, requestID, models.WithdrawalStatusPending)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		return nil, ErrWithdrawalNotPending
	}

	request.Status = models.WithdrawalStatusCompleted
	request.ProcessedAt = &now

	// Payout instruction is best-effort after the terminal transition; the
	// rail retries from its own queue.
	if s.iso != nil {
		if account, accErr := s.payouts.GetByID(request.PayoutAccountID); accErr == nil {
			doc, docErr := s.iso.CreatePayoutInstruction(request, account)
			if docErr != nil {
				log.Printf("[WITHDRAWAL] Failed to build payout instruction for %s: %v", requestID, docErr)
			} else if sendErr := s.iso.SendToPayoutRail(doc); sendErr != nil {
				log.Printf("[WITHDRAWAL] Failed to send payout instruction for %s: %v", requestID, sendErr)
			}
		} else {
			log.Printf("[WITHDRAWAL] Payout account %s missing for approved request %s: %v",
				request.PayoutAccountID, requestID, accErr)
		}
	}

	return request, nil
}

// Reject refunds the wallet and fails the request as one unit. The refund is
// the original requested amount; rows predating commission accounting only
// stored the post-commission amount, which is all that can go back.
func (s *WithdrawalService) Reject(requestID string) (*models.WithdrawalRequest, error) {
	request, err := s.fetchRequest(requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != models.WithdrawalStatusPending {
		return nil, ErrWithdrawalNotPending
	}

	amountToRefund := request.Amount
	if request.RequestedAmount.Valid {
		amountToRefund = request.RequestedAmount.Float64
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if err := s.wallet.RefundTx(tx, request.OrganizerID, amountToRefund); err != nil {
		return nil, err
	}

	now := time.Now()
	result, err := tx.Exec(`
		UPDATE withdrawal_requests
		SET status = $1, processed_at = $2
		WHERE id = $3 AND status = $4`,
		models.WithdrawalStatusFailed, now, requestID, models.WithdrawalStatusPending)
	if err != nil {
		return nil, err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rowsAffected == 0 {
		// Lost the race to a concurrent approve/reject; refund rolls back too.
		return nil, ErrWithdrawalNotPending
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	request.Status = models.WithdrawalStatusFailed
	request.ProcessedAt = &now
	log.Printf("[WITHDRAWAL] Rejected request %s, refunded %.0f", requestID, amountToRefund)
	return request, nil
}

func (s *WithdrawalService) fetchRequest(requestID string) (*models.WithdrawalRequest, error) {
	request := &models.WithdrawalRequest{}
	err := s.db.QueryRow(`
		SELECT id, organizer_id, requested_amount, amount, payout_account_id, status, processed_at, created_at
		FROM withdrawal_requests
		WHERE id = $1`, requestID).
		Scan(&request.ID, &request.OrganizerID, &request.RequestedAmount, &request.Amount,
			&request.PayoutAccountID, &request.Status, &request.ProcessedAt, &request.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrWithdrawalNotPending
	}
	if err != nil {
		return nil, err
	}
	return request, nil
}

func (s *WithdrawalService) listRequests(organizerID, status string) ([]models.WithdrawalRequest, error) {
	query := `
		SELECT id, organizer_id, requested_amount, amount, payout_account_id, status, processed_at, created_at
		FROM withdrawal_requests`
	var args []any
	switch {
	case organizerID != "":
		query += ` WHERE organizer_id = $1 ORDER BY created_at DESC`
		args = append(args, organizerID)
	case status != "":
		query += ` WHERE status = $1 ORDER BY created_at ASC`
		args = append(args, status)
	default:
		query += ` ORDER BY created_at ASC`
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.WithdrawalRequest{}
	for rows.Next() {
		var request models.WithdrawalRequest
		if err := rows.Scan(&request.ID, &request.OrganizerID, &request.RequestedAmount,
			&request.Amount, &request.PayoutAccountID, &request.Status,
			&request.ProcessedAt, &request.CreatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, request)
	}
	return requests, nil
}

// CreateWithdrawal handles organizer withdrawal requests
// @Summary Request a withdrawal
// @Description Debit the wallet by the requested amount and record a PENDING request
// @Tags withdrawals
// @Accept json
// @Produce json
// @Success 201 {object} models.WithdrawalRequest
// @Failure 400 {object} ErrorResponse
// @Failure 412 {object} ErrorResponse
// @Router /withdrawals [post]
func (s *WithdrawalService) CreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Amount float64 `json:"amount" validate:"required,gt=0"`
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1_048_576))
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

	request, err := s.CreateRequest(userID, req.Amount)
	if err != nil {
		switch err {
		case ErrPayoutAccountRequired:
			SendErrorResponse(w, "Please set up your payout account before withdrawing", http.StatusPreconditionFailed, nil)
		case ErrInsufficientBalance:
			SendErrorResponse(w, "Withdrawal amount cannot exceed your current balance", http.StatusBadRequest, nil)
		case ErrInvalidAmount:
			SendErrorResponse(w, "Withdrawal amount must be positive", http.StatusBadRequest, nil)
		default:
			log.Printf("[WITHDRAWAL] Failed to create request for %s: %v", userID, err)
			SendErrorResponse(w, "Failed to create withdrawal request", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// GetWithdrawalHistory lists the caller's withdrawal requests
// @Summary Withdrawal history
// @Tags withdrawals
// @Produce json
// @Success 200 {array} models.WithdrawalRequest
// @Router /withdrawals [get]
func (s *WithdrawalService) GetWithdrawalHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requests, err := s.listRequests(userID, "")
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawal history", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// ListWithdrawals lists all requests, optionally filtered by status
// @Summary List withdrawal requests
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {array} models.WithdrawalRequest
// @Router /admin/withdrawals [get]
func (s *WithdrawalService) ListWithdrawals(w http.ResponseWriter, r *http.Request) {
	requests, err := s.listRequests("", r.URL.Query().Get("status"))
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawal requests", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// ApproveWithdrawal approves a pending request
// @Summary Approve a withdrawal
// @Tags admin
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Router /admin/withdrawals/{id}/approve [post]
func (s *WithdrawalService) ApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	request, err := s.Approve(chi.URLParam(r, "id"))
	if err != nil {
		if err == ErrWithdrawalNotPending {
			SendErrorResponse(w, "Pending withdrawal request not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to approve withdrawal", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// RejectWithdrawal rejects a pending request and refunds the wallet
// @Summary Reject a withdrawal
// @Tags admin
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} models.WithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Router /admin/withdrawals/{id}/reject [post]
func (s *WithdrawalService) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	request, err := s.Reject(chi.URLParam(r, "id"))
	if err != nil {
		if err == ErrWithdrawalNotPending {
			SendErrorResponse(w, "Pending withdrawal request not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to reject withdrawal", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}
