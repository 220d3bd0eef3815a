package config

import (
	"os"
	"strconv"
	"time"
)

// PaymentConfig holds the settings payers need to complete a bank transfer and
// the credentials for the bank transaction feed. Policy constants (commission
// rate, sweep cadence, poll cadence) are compile-time and live next to the
// services that apply them.
type PaymentConfig struct {
	AccountName   string
	AccountNumber string
	BankBin       string
	QRTemplate    string

	BankAPIURL      string
	BankAPIKey      string
	BankAPIPageSize int
	WebhookSecret   string
	FetchTimeout    time.Duration
}

func LoadPaymentConfig() *PaymentConfig {
	return &PaymentConfig{
		AccountName:   getEnv("PAYMENT_ACCOUNT_NAME", ""),
		AccountNumber: getEnv("PAYMENT_ACCOUNT_NUMBER", ""),
		BankBin:       getEnv("PAYMENT_BANK_BIN", ""),
		QRTemplate:    getEnv("PAYMENT_QR_TEMPLATE", "compact"),

		BankAPIURL:      getEnv("BANK_API_URL", "https://oauth.casso.vn/v2/transactions"),
		BankAPIKey:      getEnv("BANK_API_KEY", ""),
		BankAPIPageSize: getEnvAsInt("BANK_API_PAGE_SIZE", 100),
		WebhookSecret:   getEnv("BANK_WEBHOOK_SECRET", ""),
		FetchTimeout:    getEnvAsDuration("BANK_FETCH_TIMEOUT", 30*time.Second),
	}
}

// Configured reports whether the payer-facing transfer settings are present.
func (c *PaymentConfig) Configured() bool {
	return c.AccountName != "" && c.AccountNumber != "" && c.BankBin != ""
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
