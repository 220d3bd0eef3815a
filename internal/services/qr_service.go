package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image/png"
	"time"

	"github.com/eventure/backend/internal/config"
	"github.com/go-redis/redis/v8"
	"github.com/skip2/go-qrcode"
)

// QRService renders the bank-transfer QR shown to payers. The encoded payload
// is cached briefly so the frontend can re-request the image without a
// re-render while the intent is still payable.
type QRService struct {
	redis *redis.Client
}

func NewQRService(redisClient *redis.Client) *QRService {
	return &QRService{redis: redisClient}
}

// qrTTL matches the intent expiry: a QR for a swept intent is useless.
const qrTTL = 10 * time.Minute

// PaymentQR returns a base64 PNG encoding the transfer details with the order
// code as the description.
func (s *QRService) PaymentQR(cfg *config.PaymentConfig, orderCode string, amount float64) (string, error) {
	payload := map[string]any{
		"bankBin":       cfg.BankBin,
		"accountNumber": cfg.AccountNumber,
		"accountName":   cfg.AccountName,
		"template":      cfg.QRTemplate,
		"amount":        amount,
		"description":   orderCode,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	if s.redis != nil {
		key := fmt.Sprintf("payqr:%s", orderCode)
		if cached, err := s.redis.Get(context.Background(), key).Result(); err == nil {
			return cached, nil
		}
	}

	qr, err := qrcode.New(string(jsonData), qrcode.Medium)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, qr.Image(256)); err != nil {
		return "", err
	}

	image := base64.StdEncoding.EncodeToString(buf.Bytes())

	if s.redis != nil {
		s.redis.Set(context.Background(), fmt.Sprintf("payqr:%s", orderCode), image, qrTTL)
	}

	return image, nil
}
