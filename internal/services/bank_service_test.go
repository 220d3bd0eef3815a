package services

import (
	"context"
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

func TestBankService_FetchTransactions(t *testing.T) {
	t.Run("sends credentials and the lookback window", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Apikey test-key", r.Header.Get("Authorization"))
			assert.Equal(t, time.Now().Add(-SyncLookback).Format("2006-01-02"), r.URL.Query().Get("fromDate"))
			assert.Equal(t, "100", r.URL.Query().Get("pageSize"))

			w.Write([]byte(`{"data": {"records": [
				{"id": 2, "description": "thanh toan UPG1A2B3C4D", "amount": 100000},
				{"id": 1, "description": "khong lien quan", "amount": 5000}
			]}}`))
		}))
		defer server.Close()

		service := NewBankService(&config.PaymentConfig{
			BankAPIURL:      server.URL,
			BankAPIKey:      "test-key",
			BankAPIPageSize: 100,
			FetchTimeout:    5 * time.Second,
		}, nil)

		records, err := service.FetchTransactions(context.Background())
		assert.NoError(t, err)
		assert.Len(t, records, 2)
		assert.Equal(t, int64(2), records[0].ID)
	})

	t.Run("a non-200 response is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()

		service := NewBankService(&config.PaymentConfig{
			BankAPIURL:   server.URL,
			BankAPIKey:   "test-key",
			FetchTimeout: 5 * time.Second,
		}, nil)

		_, err := service.FetchTransactions(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "status 403")
	})

	t.Run("a response without a records list is an error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"error": 0, "message": "ok"}`))
		}))
		defer server.Close()

		service := NewBankService(&config.PaymentConfig{
			BankAPIURL:   server.URL,
			BankAPIKey:   "test-key",
			FetchTimeout: 5 * time.Second,
		}, nil)

		_, err := service.FetchTransactions(context.Background())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "response shape")
	})
}

func TestBankService_SyncTransactions(t *testing.T) {
	t.Run("skips the cycle without an API key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("the feed must not be called without credentials")
		}))
		defer server.Close()

		service := NewBankService(&config.PaymentConfig{
			BankAPIURL:   server.URL,
			FetchTimeout: 5 * time.Second,
		}, nil)

		service.SyncTransactions(context.Background())
	})

	t.Run("processes a newest-first feed oldest first", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": {"records": [
				{"id": 2, "description": "thanh toan UPG22222222", "amount": 100000},
				{"id": 1, "description": "thanh toan UPG11111111", "amount": 100000}
			]}}`))
		}))
		defer server.Close()

		cfg := testPaymentConfig()
		cfg.BankAPIURL = server.URL
		cfg.BankAPIKey = "test-key"
		cfg.BankAPIPageSize = 100
		cfg.FetchTimeout = 5 * time.Second

		service := NewBankService(cfg, newReconcileService(db, cfg))

		// Ordered expectations: the older record's code must be looked up first.
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG11111111", models.IntentStatusPending).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("FROM payment_intents WHERE order_code = \\$1 AND status = \\$2").
			WithArgs("UPG22222222", models.IntentStatusPending).
			WillReturnError(sql.ErrNoRows)

		service.SyncTransactions(context.Background())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
