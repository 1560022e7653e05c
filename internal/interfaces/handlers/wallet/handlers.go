package wallet

import (
	"context"
	"errors"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/paymentintent"
)

type Handlers struct {
	Coordinator   *ledger.Coordinator
	StripeCreator StripePaymentIntentCreator
}

// StripePaymentIntentCreator abstracts Stripe PaymentIntent creation for
// testability.
type StripePaymentIntentCreator interface {
	Create(amountCents int64, currency string, metadata map[string]string) (*StripePaymentIntentResult, error)
}

type StripePaymentIntentResult struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
}

// RealStripeCreator uses the Stripe Go SDK to create PaymentIntents.
type RealStripeCreator struct {
	SecretKey string
}

func (r *RealStripeCreator) Create(amountCents int64, currency string, metadata map[string]string) (*StripePaymentIntentResult, error) {
	if r.SecretKey == "" {
		return nil, fiber.NewError(fiber.StatusNotImplemented, "Stripe integration pending")
	}
	stripe.Key = r.SecretKey
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountCents),
		Currency: stripe.String(currency),
		Metadata: metadata,
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &StripePaymentIntentResult{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrDuplicateRefund),
		errors.Is(err, ledger.ErrConcurrencyConflict):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

type movementBody struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Reference   string `json:"reference"`
}

func (b *movementBody) parse() (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(b.Amount)
	if err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

func accountFromParams(c *fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("account_id"))
}

// Balance GET /api/v1/wallets/:account_id
func (h *Handlers) Balance(c *fiber.Ctx) error {
	accountID, err := accountFromParams(c)
	if err != nil {
		return response.Error(c, "Invalid UUID format for account_id", fiber.StatusBadRequest, nil)
	}

	bal, err := h.Coordinator.CurrentWallet(c.Context(), accountID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Wallet fetched", fiber.Map{
		"account_id":        bal.AccountID,
		"balance":           bal.Balance,
		"lifetime_credited": bal.LifetimeCredited,
		"lifetime_debited":  bal.LifetimeDebited,
	}, nil)
}

// Ledger GET /api/v1/wallets/:account_id/ledger
func (h *Handlers) Ledger(c *fiber.Ctx) error {
	accountID, err := accountFromParams(c)
	if err != nil {
		return response.Error(c, "Invalid UUID format for account_id", fiber.StatusBadRequest, nil)
	}
	var sinceID *uuid.UUID
	if s := c.Query("since_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid UUID format for since_id", fiber.StatusBadRequest, nil)
		}
		sinceID = &id
	}

	entries, err := h.Coordinator.WalletLedger.ListFor(c.Context(), accountID, sinceID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Ledger fetched", entries, fiber.Map{"count": len(entries)})
}

// Credit POST /api/v1/wallets/:account_id/credit
func (h *Handlers) Credit(c *fiber.Ctx) error {
	return h.movement(c, h.Coordinator.CreditWallet, "Wallet credited")
}

// Debit POST /api/v1/wallets/:account_id/debit
func (h *Handlers) Debit(c *fiber.Ctx) error {
	return h.movement(c, h.Coordinator.DebitWallet, "Wallet debited")
}

// Refund POST /api/v1/wallets/:account_id/refund
func (h *Handlers) Refund(c *fiber.Ctx) error {
	return h.movement(c, h.Coordinator.RefundWallet, "Wallet refunded")
}

type walletOp func(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, description, reference string, meta domain.WalletMeta) (*domain.WalletBalance, error)

func (h *Handlers) movement(c *fiber.Ctx, op walletOp, okMsg string) error {
	accountID, err := accountFromParams(c)
	if err != nil {
		return response.Error(c, "Invalid UUID format for account_id", fiber.StatusBadRequest, nil)
	}
	var body movementBody
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	amount, err := body.parse()
	if err != nil {
		return response.Error(c, "Invalid amount", fiber.StatusBadRequest, nil)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return response.Error(c, "Amount must be a positive number", fiber.StatusBadRequest, nil)
	}

	bal, err := op(c.Context(), accountID, amount, body.Description, body.Reference, domain.WalletMeta{})
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, okMsg, fiber.Map{
		"account_id": bal.AccountID,
		"balance":    bal.Balance,
	}, nil)
}

// TopUp POST /api/v1/wallets/:account_id/top-up only creates the Stripe
// PaymentIntent; the wallet is credited by the webhook once payment lands.
func (h *Handlers) TopUp(c *fiber.Ctx) error {
	accountID, err := accountFromParams(c)
	if err != nil {
		return response.Error(c, "Invalid UUID format for account_id", fiber.StatusBadRequest, nil)
	}
	var body struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		return response.Error(c, "Amount must be a positive number", fiber.StatusBadRequest, nil)
	}
	currency := body.Currency
	if currency == "" {
		currency = "usd"
	}

	if h.StripeCreator == nil {
		return response.Error(c, "Stripe not configured", fiber.StatusInternalServerError, nil)
	}

	amountCents := amount.Mul(decimal.NewFromInt(100)).IntPart()
	pi, err := h.StripeCreator.Create(amountCents, currency, map[string]string{
		"account_id":    accountID.String(),
		"wallet_amount": amount.StringFixed(2),
	})
	if err != nil {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}
		return response.Error(c, err.Error(), code, nil)
	}

	return response.Success(c, "Payment intent created", fiber.Map{
		"payment_intent_id": pi.ID,
		"client_secret":     pi.ClientSecret,
	}, nil)
}
