package services

import (
	"bytes"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/eventure/backend/internal/config"
	"github.com/eventure/backend/internal/models"
)

func newReconcileService(db *sql.DB, cfg *config.PaymentConfig) *ReconcileService {
	wallet := NewWalletService(db)
	effects := NewEffectService(db, wallet)
	intents := NewIntentService(db, effects, nil, cfg)
	return NewReconcileService(db, nil, intents, effects, cfg)
}

func testPaymentConfig() *config.PaymentConfig {
	return &config.PaymentConfig{
		AccountName:   "EVENTURE JSC",
		AccountNumber: "190312345678",
		BankBin:       "970422",
		QRTemplate:    "compact",
		WebhookSecret: "whsec-test",
	}
}

func TestExtractOrderCode(t *testing.T) {
	cases := []struct {
		name        string
		description string
		want        string
	}{
		{"upgrade code in free text", "CK chuyen tien UPG1A2B3C4D thanh toan", "UPG1A2B3C4D"},
		{"deposit code at start", "DEPZX90KL12 su kien am nhac", "DEPZX90KL12"},
		{"code at end of description", "thanh toan don UPG00000001", "UPG00000001"},
		{"seven character suffix does not match", "UPG1A2B3C4 thieu ky tu", ""},
		{"nine character suffix does not match", "UPG123456789 thua ky tu", ""},
		{"lowercase is not a code", "upg1a2b3c4d", ""},
		{"prefix glued to a word does not match", "XUPG12345678", ""},
		{"no code at all", "chuyen khoan ca nhan", ""},
		{"empty description", "", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractOrderCode(tc.description))
		})
	}
}

func TestReconcileService_ProcessBankRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := newReconcileService(db, testPaymentConfig())

	intentColumns := []string{"id", "user_id", "amount", "order_code", "kind", "description", "status", "created_at"}

	t.Run("no order code in description", func(t *testing.T) {
		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "chuyen khoan khong lien quan",
			Amount:      100000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no pending intent for code", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG1A2B3C4D", models.IntentStatusPending).
			WillReturnError(sql.ErrNoRows)

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "thanh toan UPG1A2B3C4D",
			Amount:      100000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient amount is ignored without state change", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG1A2B3C4D", models.IntentStatusPending).
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("intent1", "user1", 100000.0, "UPG1A2B3C4D", models.IntentKindUpgrade,
					"Upgrade to PRO", models.IntentStatusPending, time.Now()))

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "thanh toan UPG1A2B3C4D",
			Amount:      50000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("upgrade intent settles and elevates the payer", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG1A2B3C4D", models.IntentStatusPending).
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("intent1", "user1", 100000.0, "UPG1A2B3C4D", models.IntentKindUpgrade,
					"Upgrade to PRO", models.IntentStatusPending, time.Now()))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT role FROM users WHERE id = \\$1").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleUser))
		mock.ExpectExec("UPDATE users SET role = \\$1").
			WithArgs(models.RoleOrganizer, "user1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_intents SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.IntentStatusCompleted, "intent1", models.IntentStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "thanh toan UPG1A2B3C4D",
			Amount:      100000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeMatched, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overpayment still settles", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG1A2B3C4D", models.IntentStatusPending).
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("intent1", "user1", 100000.0, "UPG1A2B3C4D", models.IntentKindUpgrade,
					"Upgrade to PRO", models.IntentStatusPending, time.Now()))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT role FROM users WHERE id = \\$1").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleOrganizer))
		mock.ExpectExec("UPDATE payment_intents SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.IntentStatusCompleted, "intent1", models.IntentStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "thanh toan UPG1A2B3C4D",
			Amount:      150000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeMatched, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate delivery loses the status compare-and-swap", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG1A2B3C4D", models.IntentStatusPending).
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("intent1", "user1", 100000.0, "UPG1A2B3C4D", models.IntentKindUpgrade,
					"Upgrade to PRO", models.IntentStatusPending, time.Now()))

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT role FROM users WHERE id = \\$1").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(models.RoleOrganizer))
		mock.ExpectExec("UPDATE payment_intents SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.IntentStatusCompleted, "intent1", models.IntentStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "thanh toan UPG1A2B3C4D",
			Amount:      100000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deposit intent settles registration and credits organizer", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("DEPZX90KL12", models.IntentStatusPending).
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("intent2", "user2", 250000.0, "DEPZX90KL12", models.IntentKindDeposit,
					"Deposit for event event1", models.IntentStatusPending, time.Now()))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM registrations r JOIN events e").
			WithArgs("intent2").
			WillReturnRows(sqlmock.NewRows([]string{"id", "event_id", "organizer_id"}).
				AddRow("reg1", "event1", "organizer1"))
		mock.ExpectExec("UPDATE registrations SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.RegistrationStatusDeposited, "reg1", models.RegistrationStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE events SET registered_count = registered_count \\+ 1").
			WithArgs("event1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO wallets").
			WithArgs(sqlmock.AnyArg(), "organizer1", 250000.0, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("UPDATE payment_intents SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.IntentStatusCompleted, "intent2", models.IntentStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "DEPZX90KL12 dat coc su kien",
			Amount:      250000,
		})
		assert.NoError(t, err)
		assert.Equal(t, OutcomeMatched, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed effect rolls back and marks the intent failed", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("DEPZX90KL12", models.IntentStatusPending).
			WillReturnRows(sqlmock.NewRows(intentColumns).
				AddRow("intent2", "user2", 250000.0, "DEPZX90KL12", models.IntentKindDeposit,
					"Deposit for event event1", models.IntentStatusPending, time.Now()))

		mock.ExpectBegin()
		mock.ExpectQuery("FROM registrations r JOIN events e").
			WithArgs("intent2").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()
		mock.ExpectExec("UPDATE payment_intents SET status = \\$1 WHERE id = \\$2 AND status = \\$3").
			WithArgs(models.IntentStatusFailed, "intent2", models.IntentStatusPending).
			WillReturnResult(sqlmock.NewResult(0, 1))

		outcome, err := service.ProcessBankRecord(models.BankRecord{
			Description: "DEPZX90KL12 dat coc su kien",
			Amount:      250000,
		})
		assert.Error(t, err)
		assert.Equal(t, ErrRegistrationMissing, err)
		assert.Equal(t, OutcomeIgnored, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReconcileService_HandleWebhook(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	cfg := testPaymentConfig()
	service := newReconcileService(db, cfg)

	t.Run("rejects a wrong secure token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewBufferString(`{"data": []}`))
		req.Header.Set("Secure-Token", "wrong")
		w := httptest.NewRecorder()

		service.HandleWebhook(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects when no secret is configured", func(t *testing.T) {
		bare := newReconcileService(db, &config.PaymentConfig{})
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewBufferString(`{"data": []}`))
		w := httptest.NewRecorder()

		bare.HandleWebhook(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("empty payload is a connectivity test", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewBuffer(nil))
		req.Header.Set("Secure-Token", cfg.WebhookSecret)
		w := httptest.NewRecorder()

		service.HandleWebhook(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"success":true`)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewBufferString(`{"data": [`))
		req.Header.Set("Secure-Token", cfg.WebhookSecret)
		w := httptest.NewRecorder()

		service.HandleWebhook(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("batch keeps going past unmatched records", func(t *testing.T) {
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG1A2B3C4D", models.IntentStatusPending).
			WillReturnError(sql.ErrNoRows)

		body := `{"data": [
			{"id": 1, "description": "khong co ma", "amount": 5000},
			{"id": 2, "description": "thanh toan UPG1A2B3C4D", "amount": 100000}
		]}`
		req := httptest.NewRequest(http.MethodPost, "/webhooks/bank", bytes.NewBufferString(body))
		req.Header.Set("Secure-Token", cfg.WebhookSecret)
		w := httptest.NewRecorder()

		service.HandleWebhook(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"success":true`)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
