package catalog

import (
	"errors"

	catalogsvc "cargohold-backend/internal/catalog"
	"cargohold-backend/internal/ledger"
	"cargohold-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type Handlers struct {
	Catalog *catalogsvc.Service
}

// Part GET /api/v1/catalog/parts/:part_id returns the catalog row callers
// check before recording movements against it.
func (h *Handlers) Part(c *fiber.Ctx) error {
	partID, err := uuid.Parse(c.Params("part_id"))
	if err != nil {
		return response.Error(c, "Invalid UUID format for part_id", fiber.StatusBadRequest, nil)
	}

	part, err := h.Catalog.Get(c.Context(), partID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return response.Error(c, "Part not found", fiber.StatusNotFound, nil)
		}
		return response.Error(c, err.Error(), fiber.StatusInternalServerError, nil)
	}
	return response.Success(c, "Part fetched", part, nil)
}
