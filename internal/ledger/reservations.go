package ledger

import (
	"context"
	"errors"
	"time"

	"cargohold-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReservationManager owns hold records and their state transitions. Balance
// changes that accompany a transition happen in the same coordinator
// transaction, never here alone.
type ReservationManager struct {
	DB *gorm.DB
}

// Get returns a hold by id.
func (m *ReservationManager) Get(ctx context.Context, holdID uuid.UUID) (*domain.ReservationHold, error) {
	var hold domain.ReservationHold
	err := m.DB.WithContext(ctx).Where("hold_id = ?", holdID).First(&hold).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// ListHeld returns all holds still in HELD state, oldest first. Used by
// reconciliation to surface orphans.
func (m *ReservationManager) ListHeld(ctx context.Context) ([]domain.ReservationHold, error) {
	var holds []domain.ReservationHold
	err := m.DB.WithContext(ctx).
		Where("state = ?", domain.HoldHeld).
		Order("created_at ASC").
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

// ListHeldForShipment returns the HELD holds claimed for one shipment.
func (m *ReservationManager) ListHeldForShipment(ctx context.Context, shipmentID uuid.UUID) ([]domain.ReservationHold, error) {
	var holds []domain.ReservationHold
	err := m.DB.WithContext(ctx).
		Where("shipment_id = ? AND state = ?", shipmentID, domain.HoldHeld).
		Order("created_at ASC").
		Find(&holds).Error
	if err != nil {
		return nil, err
	}
	return holds, nil
}

func (m *ReservationManager) create(tx *gorm.DB, hold *domain.ReservationHold) error {
	if err := tx.Create(hold).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateHold
		}
		return err
	}
	return nil
}

// transition flips a hold from HELD to a terminal state with a guarded
// update, so two concurrent resolvers cannot both win.
func (m *ReservationManager) transition(tx *gorm.DB, hold *domain.ReservationHold, to domain.HoldState, resolutionID *uuid.UUID) error {
	res := tx.Model(&domain.ReservationHold{}).
		Where("hold_id = ? AND state = ?", hold.HoldID, domain.HoldHeld).
		Updates(map[string]interface{}{
			"state":               to,
			"resolution_entry_id": resolutionID,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrHoldNotHeld
	}
	hold.State = to
	hold.ResolutionEntryID = resolutionID
	return nil
}

// Reserve claims quantity against available stock for a shipment. On-hand is
// untouched and no ledger entry is written: a reservation is a claim, not a
// movement.
func (c *Coordinator) Reserve(ctx context.Context, brandID, partID uuid.UUID, qty int64, shipmentID uuid.UUID) (*domain.ReservationHold, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}

	var hold *domain.ReservationHold
	err := c.withKey(inventoryKey(brandID, partID), func() error {
		return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bal, err := c.Inventory.load(tx, brandID, partID)
			if err != nil {
				return err
			}
			if bal.Available() < qty {
				return ErrInsufficientInventory
			}

			h := &domain.ReservationHold{
				BrandID:    brandID,
				PartID:     partID,
				ShipmentID: shipmentID,
				Quantity:   qty,
				State:      domain.HoldHeld,
			}
			if err := c.Holds.create(tx, h); err != nil {
				return err
			}

			bal.Reserved += qty
			if err := c.Inventory.Save(tx, bal); err != nil {
				return err
			}
			hold = h
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("hold_id", hold.HoldID.String()).
		Str("shipment_id", shipmentID.String()).
		Int64("quantity", qty).
		Msg("inventory reserved")
	return hold, nil
}

// Release returns held quantity to available without touching on-hand.
// Releasing an already released hold is a no-op.
func (c *Coordinator) Release(ctx context.Context, holdID uuid.UUID) (*domain.ReservationHold, error) {
	hold, err := c.Holds.Get(ctx, holdID)
	if err != nil {
		return nil, err
	}
	if hold.State == domain.HoldReleased {
		return hold, nil
	}
	if hold.State != domain.HoldHeld {
		return nil, ErrHoldNotHeld
	}

	err = c.withKey(inventoryKey(hold.BrandID, hold.PartID), func() error {
		return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := c.Holds.transition(tx, hold, domain.HoldReleased, nil); err != nil {
				return err
			}

			bal, err := c.Inventory.load(tx, hold.BrandID, hold.PartID)
			if err != nil {
				return err
			}
			bal.Reserved -= hold.Quantity
			return c.Inventory.Save(tx, bal)
		})
	})
	if errors.Is(err, ErrHoldNotHeld) {
		// Lost a race with another resolver; released-by-other stays a no-op.
		current, gerr := c.Holds.Get(ctx, holdID)
		if gerr == nil && current.State == domain.HoldReleased {
			return current, nil
		}
		return nil, ErrHoldNotHeld
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("hold_id", holdID.String()).Msg("hold released")
	return hold, nil
}

// Consume finalizes a hold: the held quantity leaves both reserved and
// on-hand, and the outbound ledger entry that explains it is written in the
// same transaction. kind must be ISSUE or TRANSFER_OUT; empty defaults to
// ISSUE.
func (c *Coordinator) Consume(ctx context.Context, holdID uuid.UUID, kind domain.MovementKind, destination, actor string) (*domain.ReservationHold, *domain.InventoryLedgerEntry, error) {
	if kind == "" {
		kind = domain.MovementIssue
	}
	if !kind.FinalizesHold() {
		return nil, nil, ErrInvalidMovementKind
	}

	hold, err := c.Holds.Get(ctx, holdID)
	if err != nil {
		return nil, nil, err
	}
	if hold.State != domain.HoldHeld {
		return nil, nil, ErrHoldNotHeld
	}

	var entry *domain.InventoryLedgerEntry
	err = c.withKey(inventoryKey(hold.BrandID, hold.PartID), func() error {
		return c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bal, err := c.Inventory.load(tx, hold.BrandID, hold.PartID)
			if err != nil {
				return err
			}

			// Give the hold's claim back first so the outbound delta is
			// checked against unreserved stock only.
			bal.Reserved -= hold.Quantity
			if bal.Reserved < 0 {
				return ErrConcurrencyConflict
			}
			now := time.Now()
			if err := c.Inventory.Apply(bal, kind, hold.Quantity, bal.AverageCost, now); err != nil {
				return err
			}

			meta, err := domain.MovementMeta{Note: "hold consumed"}.JSON()
			if err != nil {
				return err
			}
			shipmentID := hold.ShipmentID
			e := &domain.InventoryLedgerEntry{
				BrandID:      hold.BrandID,
				PartID:       hold.PartID,
				Kind:         kind,
				Quantity:     hold.Quantity,
				Destination:  destination,
				UnitCost:     bal.AverageCost,
				TotalValue:   bal.AverageCost.Mul(decimal.NewFromInt(hold.Quantity)).Round(2),
				BalanceAfter: bal.OnHand,
				ShipmentID:   &shipmentID,
				Actor:        actor,
				Meta:         meta,
				CreatedAt:    now,
			}
			if _, err := c.Ledger.Append(tx, e); err != nil {
				return err
			}
			if err := c.Holds.transition(tx, hold, domain.HoldConsumed, &e.EntryID); err != nil {
				return err
			}
			if err := c.Inventory.Save(tx, bal); err != nil {
				return err
			}
			entry = e
			return nil
		})
	})
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("hold_id", holdID.String()).
		Str("entry_id", entry.EntryID.String()).
		Str("kind", string(kind)).
		Msg("hold consumed")
	return hold, entry, nil
}
