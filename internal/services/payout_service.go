package services

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/eventure/backend/internal/models"
	"github.com/google/uuid"
)

// PayoutAccountService manages the one-per-user bank account withdrawals pay
// out to. Its existence gates withdrawal creation.
type PayoutAccountService struct {
	db        *sql.DB
	validator *ValidationHelper
}

func NewPayoutAccountService(db *sql.DB) *PayoutAccountService {
	return &PayoutAccountService{db: db, validator: NewValidationHelper()}
}

func (s *PayoutAccountService) GetForUser(userID string) (*models.PayoutAccount, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT id, user_id, bank_name, account_name, account_number, updated_at
		FROM payout_accounts
		WHERE user_id = $1`, userID))
}

func (s *PayoutAccountService) GetByID(id string) (*models.PayoutAccount, error) {
	return s.scanAccount(s.db.QueryRow(`
		SELECT id, user_id, bank_name, account_name, account_number, updated_at
		FROM payout_accounts
		WHERE id = $1`, id))
}

func (s *PayoutAccountService) scanAccount(row *sql.Row) (*models.PayoutAccount, error) {
	account := &models.PayoutAccount{}
	err := row.Scan(&account.ID, &account.UserID, &account.BankName,
		&account.AccountName, &account.AccountNumber, &account.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Upsert creates or replaces the user's payout account.
func (s *PayoutAccountService) Upsert(userID, bankName, accountName, accountNumber string) (*models.PayoutAccount, error) {
	account := &models.PayoutAccount{
		ID:            uuid.New().String(),
		UserID:        userID,
		BankName:      bankName,
		AccountName:   accountName,
		AccountNumber: accountNumber,
		UpdatedAt:     time.Now(),
	}

	err := s.db.QueryRow(`
		INSERT INTO payout_accounts (id, user_id, bank_name, account_name, account_number, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE
		SET bank_name = EXCLUDED.bank_name,
		    account_name = EXCLUDED.account_name,
		    account_number = EXCLUDED.account_number,
		    updated_at = EXCLUDED.updated_at
		RETURNING id`,
		account.ID, userID, bankName, accountName, accountNumber, account.UpdatedAt).
		Scan(&account.ID)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetPayoutAccount returns the caller's payout account
// @Summary Get payout account
// @Tags payout-accounts
// @Produce json
// @Success 200 {object} models.PayoutAccount
// @Failure 404 {object} ErrorResponse
// @Router /payout-accounts/me [get]
func (s *PayoutAccountService) GetPayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := s.GetForUser(userID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Payout account not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		SendErrorResponse(w, "Failed to fetch payout account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}

// UpsertPayoutAccount creates or updates the caller's payout account
// @Summary Set payout account
// @Tags payout-accounts
// @Accept json
// @Produce json
// @Success 200 {object} models.PayoutAccount
// @Failure 400 {object} ErrorResponse
// @Router /payout-accounts/me [put]
func (s *PayoutAccountService) UpsertPayoutAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		BankName      string `json:"bankName" validate:"required"`
		AccountName   string `json:"accountName" validate:"required"`
		AccountNumber string `json:"accountNumber" validate:"required"`
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

	account, err := s.Upsert(userID, req.BankName, req.AccountName, req.AccountNumber)
	if err != nil {
		SendErrorResponse(w, "Failed to save payout account", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(account)
}
