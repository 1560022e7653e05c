package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HoldState is the reservation lifecycle. HELD is the only non-terminal
// state; CONSUMED and RELEASED are terminal.
type HoldState string

const (
	HoldHeld     HoldState = "HELD"
	HoldConsumed HoldState = "CONSUMED"
	HoldReleased HoldState = "RELEASED"
)

// ReservationHold is a claim against available quantity for one shipment.
// It never changes on-hand stock by itself; consuming it does, through the
// coordinator, in the same transaction that flips the state.
type ReservationHold struct {
	HoldID            uuid.UUID  `gorm:"column:hold_id;type:uuid;primaryKey" json:"hold_id"`
	BrandID           uuid.UUID  `gorm:"column:brand_id;type:uuid;not null;uniqueIndex:idx_hold_key" json:"brand_id"`
	PartID            uuid.UUID  `gorm:"column:part_id;type:uuid;not null;uniqueIndex:idx_hold_key" json:"part_id"`
	ShipmentID        uuid.UUID  `gorm:"column:shipment_id;type:uuid;not null;uniqueIndex:idx_hold_key" json:"shipment_id"`
	Quantity          int64      `gorm:"column:quantity;not null" json:"quantity"`
	State             HoldState  `gorm:"column:state;type:varchar(10);not null;default:'HELD'" json:"state"`
	ResolutionEntryID *uuid.UUID `gorm:"column:resolution_entry_id;type:uuid" json:"resolution_entry_id"`
	CreatedAt         time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (ReservationHold) TableName() string {
	return "reservation_holds"
}

func (h *ReservationHold) BeforeCreate(tx *gorm.DB) error {
	if h.HoldID == uuid.Nil {
		h.HoldID = uuid.New()
	}
	return nil
}
