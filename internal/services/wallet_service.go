package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/eventure/backend/internal/models"
	"github.com/google/uuid"
)

// WalletService owns organizer wallet balances. All mutations run inside a
// caller-supplied *sql.Tx so they commit or roll back together with the state
// change that caused them.
type WalletService struct {
	db *sql.DB
}

func NewWalletService(db *sql.DB) *WalletService {
	return &WalletService{db: db}
}

// FindOrCreateForUser returns the user's wallet, creating a zero-balance row
// the first time it is asked for.
func (s *WalletService) FindOrCreateForUser(userID string) (*models.Wallet, error) {
	wallet := &models.Wallet{}
	err := s.db.QueryRow(`
		SELECT id, user_id, balance, created_at, updated_at
		FROM wallets
		WHERE user_id = $1`, userID).
		Scan(&wallet.ID, &wallet.UserID, &wallet.Balance, &wallet.CreatedAt, &wallet.UpdatedAt)

	if err == nil {
		return wallet, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	wallet.ID = uuid.New().String()
	wallet.UserID = userID
	wallet.Balance = 0
	now := time.Now()
	wallet.CreatedAt = now
	wallet.UpdatedAt = now

	_, err = s.db.Exec(`
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (user_id) DO NOTHING`,
		wallet.ID, userID, now)
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// CreditTx increments the user's balance, creating the wallet when absent.
func (s *WalletService) CreditTx(tx *sql.Tx, userID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	_, err := tx.Exec(`
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		uuid.New().String(), userID, amount, time.Now())
	return err
}

// DebitTx decrements the balance only when it covers the amount. The balance
// check and the decrement are one conditional statement, so two concurrent
// debits cannot both pass a stale check and drive the balance negative.
func (s *WalletService) DebitTx(tx *sql.Tx, userID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	result, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance - $1, updated_at = $2
		WHERE user_id = $3 AND balance >= $1`,
		amount, time.Now(), userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// RefundTx returns a previously debited amount to an existing wallet.
func (s *WalletService) RefundTx(tx *sql.Tx, userID string, amount float64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	result, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance + $1, updated_at = $2
		WHERE user_id = $3`,
		amount, time.Now(), userID)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("wallet for user %s not found", userID)
	}
	return nil
}

// GetMyWallet returns the caller's wallet
// @Summary Get own wallet
// @Description Return the authenticated organizer's wallet, creating it on first access
// @Tags wallet
// @Produce json
// @Success 200 {object} models.Wallet
// @Failure 401 {object} ErrorResponse
// @Router /wallet/me [get]
func (s *WalletService) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	wallet, err := s.FindOrCreateForUser(userID)
	if err != nil {
		SendErrorResponse(w, "Failed to load wallet", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wallet)
}
