package ledger

import (
	"context"
	"errors"
	"time"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceProjector derives and maintains the current inventory position for
// a (brand, part) key. It never writes outside a coordinator transaction.
type BalanceProjector struct {
	DB *gorm.DB
}

// CurrentBalance returns the stored snapshot, or a zero balance when the key
// has no history. This is the only place a missing record is not an error.
func (p *BalanceProjector) CurrentBalance(ctx context.Context, brandID, partID uuid.UUID) (*domain.InventoryBalance, error) {
	return p.load(p.DB.WithContext(ctx), brandID, partID)
}

func (p *BalanceProjector) load(db *gorm.DB, brandID, partID uuid.UUID) (*domain.InventoryBalance, error) {
	var bal domain.InventoryBalance
	err := db.Where("brand_id = ? AND part_id = ?", brandID, partID).First(&bal).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &domain.InventoryBalance{
			BrandID:     brandID,
			PartID:      partID,
			AverageCost: decimal.Zero,
			LastCost:    decimal.Zero,
		}, nil
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

// Apply mutates the snapshot in memory under the movement rules: signed
// delta per kind, rejection (never clamping) when on-hand would go
// negative or dip below the reserved quantity, moving-average cost update
// on inbound movements.
func (p *BalanceProjector) Apply(bal *domain.InventoryBalance, kind domain.MovementKind, qty int64, unitCost decimal.Decimal, at time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	dir, ok := kind.Direction()
	if !ok {
		return ErrInvalidMovementKind
	}

	newOnHand := bal.OnHand + dir*qty
	if newOnHand < 0 {
		return ErrInsufficientInventory
	}
	// Outbound movements may only take unreserved stock. Hold-consuming
	// paths give their claim back before applying, so they are unaffected.
	if dir < 0 && newOnHand < bal.Reserved {
		return ErrInsufficientInventory
	}

	if dir > 0 {
		// Weighted average over the combined quantity.
		prior := bal.AverageCost.Mul(decimal.NewFromInt(bal.OnHand))
		added := unitCost.Mul(decimal.NewFromInt(qty))
		bal.AverageCost = prior.Add(added).DivRound(decimal.NewFromInt(newOnHand), 4)
		bal.LastCost = unitCost
	}

	bal.OnHand = newOnHand
	bal.LastMovementAt = &at
	return nil
}

// Save persists the snapshot inside tx. New keys (version 0) are created;
// existing keys are updated with a compare-and-swap on the version column.
// A lost race surfaces as ErrConcurrencyConflict and the caller retries the
// whole read-modify-write.
func (p *BalanceProjector) Save(tx *gorm.DB, bal *domain.InventoryBalance) error {
	now := time.Now()
	if bal.Version == 0 {
		bal.Version = 1
		if err := tx.Create(bal).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrConcurrencyConflict
			}
			return err
		}
		return nil
	}

	res := tx.Model(&domain.InventoryBalance{}).
		Where("brand_id = ? AND part_id = ? AND version = ?", bal.BrandID, bal.PartID, bal.Version).
		Updates(map[string]interface{}{
			"on_hand":          bal.OnHand,
			"reserved":         bal.Reserved,
			"average_cost":     bal.AverageCost,
			"last_cost":        bal.LastCost,
			"last_movement_at": bal.LastMovementAt,
			"version":          bal.Version + 1,
			"updated_at":       now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConcurrencyConflict
	}
	bal.Version++
	return nil
}

// Replay recomputes on-hand from the full ledger history for a key. The
// result must equal the stored balance; reconciliation flags any drift.
func (p *BalanceProjector) Replay(ctx context.Context, store *LedgerStore, brandID, partID uuid.UUID) (int64, error) {
	entries, err := store.ListFor(ctx, brandID, partID, nil)
	if err != nil {
		return 0, err
	}
	var onHand int64
	for _, e := range entries {
		dir, ok := e.Kind.Direction()
		if !ok {
			return 0, ErrInvalidMovementKind
		}
		onHand += dir * e.Quantity
	}
	return onHand, nil
}
