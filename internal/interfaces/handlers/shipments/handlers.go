package shipments

import (
	"errors"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/pkg/response"
	shipmentsvc "cargohold-backend/internal/shipments"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Coordinator *ledger.Coordinator
	Shipments   *shipmentsvc.Service
}

// Cancel POST /api/v1/shipments/:shipment_id/cancel marks the shipment
// cancelled, releases its holds and refunds the unrefunded part of its
// wallet debit. Each step is idempotent, so retrying a partially failed
// cancel converges; anything still missed is backstopped by reconciliation.
func (h *Handlers) Cancel(c *fiber.Ctx) error {
	shipmentID, err := uuid.Parse(c.Params("shipment_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for shipment_id", fiber.StatusBadRequest, nil)
	}

	shipment, err := h.Shipments.Cancel(c.Context(), shipmentID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrNotFound):
			return response.Error(c, err.Error(), fiber.StatusNotFound, nil)
		case errors.Is(err, shipmentsvc.ErrNotCancellable):
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		}
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}

	holds, err := h.Coordinator.Holds.ListHeldForShipment(c.Context(), shipmentID)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	released := 0
	for i := range holds {
		if _, err := h.Coordinator.Release(c.Context(), holds[i].HoldID); err != nil {
			log.Warn().Err(err).Str("hold_id", holds[i].HoldID.String()).Msg("hold release on cancel failed")
			continue
		}
		released++
	}

	refunded, err := h.refundShipmentDebit(c, shipment)
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}

	return response.Success(c, "Shipment cancelled", fiber.Map{
		"shipment":       shipment,
		"holds_released": released,
		"refunded":       refunded,
	}, nil)
}

// refundShipmentDebit refunds debit-total minus credit-total for the
// shipment reference. Zero shortfall, a missing debit and an already
// recorded refund all resolve to "nothing to refund".
func (h *Handlers) refundShipmentDebit(c *fiber.Ctx, shipment *domain.Shipment) (string, error) {
	if shipment.AccountID == nil || shipment.Reference == "" {
		return "0", nil
	}

	entries, err := h.Coordinator.WalletLedger.ListByReference(c.Context(), shipment.Reference)
	if err != nil {
		return "", err
	}
	shortfall := decimal.Zero
	for _, e := range entries {
		switch e.Kind {
		case domain.EntryDebit:
			shortfall = shortfall.Add(e.Amount)
		case domain.EntryCredit:
			shortfall = shortfall.Sub(e.Amount)
		}
	}
	if shortfall.LessThanOrEqual(decimal.Zero) {
		return "0", nil
	}

	_, err = h.Coordinator.RefundWallet(c.Context(), *shipment.AccountID, shortfall, "shipment cancelled", shipment.Reference, domain.WalletMeta{})
	if errors.Is(err, ledger.ErrDuplicateRefund) || errors.Is(err, ledger.ErrNotFound) {
		return "0", nil
	}
	if err != nil {
		return "", err
	}
	return shortfall.String(), nil
}
