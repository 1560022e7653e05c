package inventory

import (
	"errors"

	"cargohold-backend/internal/domain"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/middleware"
	"cargohold-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Handlers struct {
	Coordinator *ledger.Coordinator
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ledger.ErrInsufficientInventory),
		errors.Is(err, ledger.ErrInvalidMovementKind),
		errors.Is(err, ledger.ErrInvalidQuantity):
		return fiber.StatusBadRequest
	case errors.Is(err, ledger.ErrDuplicateHold),
		errors.Is(err, ledger.ErrHoldNotHeld),
		errors.Is(err, ledger.ErrConcurrencyConflict):
		return fiber.StatusConflict
	}
	return fiber.StatusInternalServerError
}

// RecordMovement POST /api/v1/inventory/movements
func (h *Handlers) RecordMovement(c *fiber.Ctx) error {
	var body struct {
		BrandID     string  `json:"brand_id"`
		PartID      string  `json:"part_id"`
		Kind        string  `json:"kind"`
		Quantity    int64   `json:"quantity"`
		Source      string  `json:"source"`
		Destination string  `json:"destination"`
		UnitCost    *string `json:"unit_cost"`
		ShipmentID  *string `json:"shipment_id"`
		Note        string  `json:"note"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	brandID, err := uuid.Parse(body.BrandID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for brand_id", fiber.StatusBadRequest, nil)
	}
	partID, err := uuid.Parse(body.PartID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for part_id", fiber.StatusBadRequest, nil)
	}
	if body.Quantity <= 0 {
		return response.Error(c, "Quantity must be a positive number", fiber.StatusBadRequest, nil)
	}

	in := ledger.MovementInput{
		BrandID:     brandID,
		PartID:      partID,
		Kind:        domain.MovementKind(body.Kind),
		Quantity:    body.Quantity,
		Source:      body.Source,
		Destination: body.Destination,
		Actor:       middleware.GetActor(c),
		Meta:        domain.MovementMeta{Note: body.Note},
	}
	if body.UnitCost != nil {
		cost, err := decimal.NewFromString(*body.UnitCost)
		if err != nil {
			return response.Error(c, "Invalid unit_cost", fiber.StatusBadRequest, nil)
		}
		in.UnitCost = &cost
	}
	if body.ShipmentID != nil {
		shipmentID, err := uuid.Parse(*body.ShipmentID)
		if err != nil {
			return response.Error(c, "Invalid UUID format for shipment_id", fiber.StatusBadRequest, nil)
		}
		in.ShipmentID = &shipmentID
	}

	entry, err := h.Coordinator.RecordInventoryMovement(c.Context(), in)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.SuccessCreated(c, "Movement recorded", entry, nil)
}

// Balance GET /api/v1/inventory/balance?brand_id=&part_id=
func (h *Handlers) Balance(c *fiber.Ctx) error {
	brandID, err := uuid.Parse(c.Query("brand_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for brand_id", fiber.StatusBadRequest, nil)
	}
	partID, err := uuid.Parse(c.Query("part_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for part_id", fiber.StatusBadRequest, nil)
	}

	bal, err := h.Coordinator.CurrentInventory(c.Context(), brandID, partID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Balance fetched", fiber.Map{
		"brand_id":  bal.BrandID,
		"part_id":   bal.PartID,
		"on_hand":   bal.OnHand,
		"reserved":  bal.Reserved,
		"available": bal.Available(),
	}, nil)
}

// Ledger GET /api/v1/inventory/ledger?brand_id=&part_id=&since_id=
func (h *Handlers) Ledger(c *fiber.Ctx) error {
	brandID, err := uuid.Parse(c.Query("brand_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for brand_id", fiber.StatusBadRequest, nil)
	}
	partID, err := uuid.Parse(c.Query("part_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for part_id", fiber.StatusBadRequest, nil)
	}
	var sinceID *uuid.UUID
	if s := c.Query("since_id"); s != "" {
		id, err := uuid.Parse(s)
		if err != nil {
			return response.Error(c, "Invalid UUID format for since_id", fiber.StatusBadRequest, nil)
		}
		sinceID = &id
	}

	entries, err := h.Coordinator.Ledger.ListFor(c.Context(), brandID, partID, sinceID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Ledger fetched", entries, fiber.Map{"count": len(entries)})
}

// Reserve POST /api/v1/inventory/reserve
func (h *Handlers) Reserve(c *fiber.Ctx) error {
	var body struct {
		BrandID    string `json:"brand_id"`
		PartID     string `json:"part_id"`
		Quantity   int64  `json:"quantity"`
		ShipmentID string `json:"shipment_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	brandID, err := uuid.Parse(body.BrandID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for brand_id", fiber.StatusBadRequest, nil)
	}
	partID, err := uuid.Parse(body.PartID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for part_id", fiber.StatusBadRequest, nil)
	}
	shipmentID, err := uuid.Parse(body.ShipmentID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for shipment_id", fiber.StatusBadRequest, nil)
	}
	if body.Quantity <= 0 {
		return response.Error(c, "Quantity must be a positive number", fiber.StatusBadRequest, nil)
	}

	hold, err := h.Coordinator.Reserve(c.Context(), brandID, partID, body.Quantity, shipmentID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.SuccessCreated(c, "Inventory reserved", hold, nil)
}

// Release POST /api/v1/inventory/release
func (h *Handlers) Release(c *fiber.Ctx) error {
	var body struct {
		HoldID string `json:"hold_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	holdID, err := uuid.Parse(body.HoldID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for hold_id", fiber.StatusBadRequest, nil)
	}

	hold, err := h.Coordinator.Release(c.Context(), holdID)
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Hold released", hold, nil)
}

// Consume POST /api/v1/inventory/consume
func (h *Handlers) Consume(c *fiber.Ctx) error {
	var body struct {
		HoldID      string `json:"hold_id"`
		Kind        string `json:"kind"`
		Destination string `json:"destination"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}
	holdID, err := uuid.Parse(body.HoldID)
	if err != nil {
		return response.Error(c, "Invalid UUID format for hold_id", fiber.StatusBadRequest, nil)
	}

	hold, entry, err := h.Coordinator.Consume(c.Context(), holdID, domain.MovementKind(body.Kind), body.Destination, middleware.GetActor(c))
	if err != nil {
		return response.Error(c, err.Error(), statusFor(err), nil)
	}
	return response.Success(c, "Hold consumed", fiber.Map{
		"hold":  hold,
		"entry": entry,
	}, nil)
}
