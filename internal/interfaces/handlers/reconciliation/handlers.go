package reconciliation

import (
	"errors"

	"cargohold-backend/internal/pkg/response"
	recon "cargohold-backend/internal/reconciliation"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Engine *recon.Engine
}

// Run POST /api/v1/reconciliation/run {mode, brand_id?, account_id?}
func (h *Handlers) Run(c *fiber.Ctx) error {
	var body struct {
		Mode      string  `json:"mode"`
		BrandID   *string `json:"brand_id"`
		AccountID *string `json:"account_id"`
	}
	if err := c.BodyParser(&body); err != nil {
		return response.Error(c, "Missing required fields", fiber.StatusBadRequest, nil)
	}

	mode := recon.Mode(body.Mode)
	if mode != recon.ModeDryRun && mode != recon.ModeApply {
		return response.Error(c, "mode must be DRY_RUN or APPLY", fiber.StatusBadRequest, nil)
	}

	var scope recon.Scope
	if body.BrandID != nil {
		id, err := uuid.Parse(*body.BrandID)
		if err != nil {
			return response.Error(c, "Invalid UUID format for brand_id", fiber.StatusBadRequest, nil)
		}
		scope.BrandID = &id
	}
	if body.AccountID != nil {
		id, err := uuid.Parse(*body.AccountID)
		if err != nil {
			return response.Error(c, "Invalid UUID format for account_id", fiber.StatusBadRequest, nil)
		}
		scope.AccountID = &id
	}

	report, err := h.Engine.Run(c.Context(), mode, scope)
	if err != nil {
		if errors.Is(err, recon.ErrRunInProgress) {
			return response.Error(c, err.Error(), fiber.StatusConflict, nil)
		}
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Reconciliation run finished", report, fiber.Map{
		"findings": len(report.Findings),
	})
}

// LastReport GET /api/v1/reconciliation/last-report
func (h *Handlers) LastReport(c *fiber.Ctx) error {
	report, err := h.Engine.LastReport(c.Context())
	if err != nil {
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	if report == nil {
		return response.Error(c, "No reconciliation report available", fiber.StatusNotFound, nil)
	}
	return response.Success(c, "Last report fetched", report, nil)
}
