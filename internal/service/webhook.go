package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/davidocha/coinvault/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrBadWebhookSignature rejects webhook deliveries whose HMAC does not match.
var ErrBadWebhookSignature = errors.New("webhook signature mismatch")

// DepositEvent is the custody provider's confirmation that funds landed
// on-chain for an owner. Reference is the provider's unique id for the
// transfer and drives replay deduplication.
type DepositEvent struct {
	Reference string `json:"reference"`
	OwnerID   string `json:"owner_id"`
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
}

// WebhookService ingests signed deposit confirmations from the custody
// provider.
type WebhookService struct {
	processor *TransactionProcessor
	secret    []byte
}

func NewWebhookService(processor *TransactionProcessor, secret string) *WebhookService {
	return &WebhookService{processor: processor, secret: []byte(secret)}
}

// VerifySignature checks the hex-encoded HMAC-SHA256 of the raw body.
func (s *WebhookService) VerifySignature(body []byte, signature string) error {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrBadWebhookSignature
	}
	return nil
}

// ProcessDeposit credits a confirmed deposit. Redelivery of the same
// reference returns the original transaction without a second credit.
func (s *WebhookService) ProcessDeposit(ctx context.Context, event DepositEvent) (*models.Transaction, error) {
	if event.Reference == "" {
		return nil, fmt.Errorf("%w: missing reference", models.ErrInvalidAmount)
	}
	ownerID, err := uuid.Parse(event.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("parse owner id: %w", err)
	}
	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidAmount, event.Amount)
	}

	tx, err := s.processor.Submit(ctx, DepositRequest{
		OwnerID:     ownerID,
		Asset:       event.Asset,
		Amount:      amount,
		Note:        "custody deposit " + event.Reference,
		ReferenceID: event.Reference,
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("deposit webhook processed",
		zap.String("reference", event.Reference),
		zap.String("asset", event.Asset),
		zap.String("amount", amount.String()),
	)
	return tx, nil
}
