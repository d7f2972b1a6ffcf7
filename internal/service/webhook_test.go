package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/davidocha/coinvault/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookSignatureVerification(t *testing.T) {
	svc := NewWebhookService(nil, "topsecret")
	body := []byte(`{"reference":"r1"}`)

	require.NoError(t, svc.VerifySignature(body, signBody("topsecret", body)))

	err := svc.VerifySignature(body, signBody("wrongsecret", body))
	assert.ErrorIs(t, err, ErrBadWebhookSignature)

	err = svc.VerifySignature([]byte(`{"reference":"tampered"}`), signBody("topsecret", body))
	assert.ErrorIs(t, err, ErrBadWebhookSignature)
}

func TestWebhookDepositRedeliveryCreditsOnce(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)
	svc := NewWebhookService(processor, "topsecret")

	ctx := context.Background()
	owner := uuid.New()
	event := DepositEvent{
		Reference: "prov-evt-771",
		OwnerID:   owner.String(),
		Asset:     domain.AssetETH,
		Amount:    "2.5",
	}

	first, err := svc.ProcessDeposit(ctx, event)
	require.NoError(t, err)

	second, err := svc.ProcessDeposit(ctx, event)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	balance := walletBalance(t, db, &owner, domain.AssetETH)
	assert.True(t, balance.Equal(decimal.RequireFromString("2.5")), "balance = %s", balance)
}

func TestWebhookDepositRejectsMalformedEvents(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	processor, _ := newTestProcessor(db)
	svc := NewWebhookService(processor, "topsecret")

	ctx := context.Background()

	_, err := svc.ProcessDeposit(ctx, DepositEvent{OwnerID: uuid.NewString(), Asset: domain.AssetETH, Amount: "1"})
	assert.Error(t, err, "missing reference")

	_, err = svc.ProcessDeposit(ctx, DepositEvent{Reference: "r2", OwnerID: "not-a-uuid", Asset: domain.AssetETH, Amount: "1"})
	assert.Error(t, err)

	_, err = svc.ProcessDeposit(ctx, DepositEvent{Reference: "r3", OwnerID: uuid.NewString(), Asset: domain.AssetETH, Amount: "one"})
	assert.Error(t, err)
}
