package payments

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// WebhookHandler credits wallets when Stripe confirms a top-up payment.
// Mounted before any body parser so the raw payload survives for signature
// verification.
type WebhookHandler struct {
	Coordinator   *ledger.Coordinator
	WebhookSecret string
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type paymentIntentObject struct {
	ID             string            `json:"id"`
	AmountReceived int               `json:"amount_received"`
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	Metadata       map[string]string `json:"metadata"`
}

// HandleWebhook POST /api/v1/stripe/webhook: raw body, signature
// verification, then process. Always answers 200 for domain-level failures
// so Stripe does not retry forever.
func (wh *WebhookHandler) HandleWebhook(c *fiber.Ctx) error {
	rawBody := c.BodyRaw()
	sig := c.Get("Stripe-Signature")

	if len(rawBody) == 0 {
		log.Warn().Msg("Stripe webhook received empty body")
		return c.Status(fiber.StatusBadRequest).SendString("Webhook Error: empty body")
	}

	if err := verifyStripeSignature(rawBody, sig, wh.WebhookSecret); err != nil {
		log.Warn().Err(err).Bool("has_sig", sig != "").Bool("has_secret", wh.WebhookSecret != "").Msg("Stripe webhook signature verification failed")
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	var event stripeEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		log.Warn().Err(err).Msg("Stripe webhook JSON parse failed")
		return c.Status(fiber.StatusBadRequest).SendString(fmt.Sprintf("Webhook Error: %s", err.Error()))
	}

	if event.Type == "payment_intent.succeeded" {
		var pi paymentIntentObject
		if err := json.Unmarshal(event.Data.Object, &pi); err != nil {
			return c.Status(fiber.StatusOK).SendString("ok")
		}
		if err := wh.handlePaymentIntentSucceeded(c, pi); err != nil {
			log.Warn().Err(err).Str("payment_intent", pi.ID).Msg("wallet top-up credit failed")
		}
	}

	return c.Status(fiber.StatusOK).SendString("ok")
}

func (wh *WebhookHandler) handlePaymentIntentSucceeded(c *fiber.Ctx, pi paymentIntentObject) error {
	accountStr := pi.Metadata["account_id"]
	amountStr := pi.Metadata["wallet_amount"]
	if accountStr == "" || amountStr == "" {
		return nil // not a wallet top-up intent
	}

	accountID, err := uuid.Parse(accountStr)
	if err != nil {
		return err
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return errors.New("invalid wallet_amount metadata")
	}

	// Idempotency: one credit per payment intent, keyed by reference.
	reference := "stripe:" + pi.ID
	existing, err := wh.Coordinator.WalletLedger.ListByReference(c.Context(), reference)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil // already processed
	}

	meta := domain.WalletMeta{
		Gateway:    "stripe",
		GatewayRef: pi.ID,
	}
	_, err = wh.Coordinator.CreditWallet(c.Context(), accountID, amount, "wallet top-up", reference, meta)
	return err
}

// verifyStripeSignature verifies the Stripe-Signature header using the
// webhook secret.
func verifyStripeSignature(payload []byte, sigHeader, secret string) error {
	if sigHeader == "" || secret == "" {
		return errors.New("missing signature or secret")
	}

	var timestamp string
	var signatures []string

	parts := strings.Split(sigHeader, ",")
	for _, part := range parts {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			timestamp = kv[1]
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == "" || len(signatures) == 0 {
		return errors.New("invalid signature format")
	}

	signedPayload := timestamp + "." + string(payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expectedSig)) {
			ts, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				return errors.New("invalid timestamp")
			}
			diff := time.Now().Unix() - ts
			if diff < 0 {
				diff = -diff
			}
			if diff > 300 {
				return errors.New("timestamp too old")
			}
			return nil
		}
	}

	return errors.New("signature mismatch")
}
