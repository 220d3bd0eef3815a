package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/eventure/backend/internal/config"
	"github.com/eventure/backend/internal/models"
)

// SyncInterval is how often the poller asks the bank API for recent
// transactions; SyncLookback is the trailing window it asks for. The generous
// window means a missed webhook is always rediscovered within a minute.
const (
	SyncInterval = 1 * time.Minute
	SyncLookback = 24 * time.Hour
)

// BankService is the client for the external bank transaction feed. It treats
// the API as a black box that returns a list of records; anything unexpected
// is logged and the cycle is skipped, never propagated.
type BankService struct {
	cfg        *config.PaymentConfig
	httpClient *http.Client
	reconciler *ReconcileService
}

func NewBankService(cfg *config.PaymentConfig, reconciler *ReconcileService) *BankService {
	return &BankService{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		reconciler: reconciler,
	}
}

// FetchTransactions pulls every transaction in the trailing lookback window.
func (s *BankService) FetchTransactions(ctx context.Context) ([]models.BankRecord, error) {
	fromDate := time.Now().Add(-SyncLookback).Format("2006-01-02")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.BankAPIURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Apikey "+s.cfg.BankAPIKey)

	query := url.Values{}
	query.Set("fromDate", fromDate)
	query.Set("pageSize", strconv.Itoa(s.cfg.BankAPIPageSize))
	req.URL.RawQuery = query.Encode()

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bank API returned status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Records []models.BankRecord `json:"records"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("unexpected bank API response shape: %w", err)
	}
	if body.Data.Records == nil {
		return nil, fmt.Errorf("unexpected bank API response shape: no records list")
	}

	return body.Data.Records, nil
}

// SyncTransactions is the poller body. The API returns newest-first; records
// are processed oldest-first so causal ordering stays stable when one batch
// holds several candidate matches. Any failure is contained to this cycle.
func (s *BankService) SyncTransactions(ctx context.Context) {
	log.Printf("[BANK_SYNC] Running scheduled job to sync transactions from bank feed")

	if s.cfg.BankAPIKey == "" {
		log.Printf("[BANK_SYNC] BANK_API_KEY is not configured, skipping sync job")
		return
	}

	records, err := s.FetchTransactions(ctx)
	if err != nil {
		log.Printf("[BANK_SYNC] Failed to sync transactions from bank feed: %v", err)
		return
	}

	log.Printf("[BANK_SYNC] Fetched %d transactions from bank API", len(records))

	matched := 0
	for i := len(records) - 1; i >= 0; i-- {
		outcome, err := s.reconciler.ProcessBankRecord(records[i])
		if err != nil {
			log.Printf("[BANK_SYNC] Record failed: %v", err)
			continue
		}
		if outcome == OutcomeMatched {
			matched++
		}
	}

	if matched > 0 {
		log.Printf("[BANK_SYNC] Settled %d pending intents this cycle", matched)
	}
}
