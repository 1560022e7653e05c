package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ShipmentStatus string

const (
	ShipmentPending   ShipmentStatus = "pending"
	ShipmentInTransit ShipmentStatus = "in_transit"
	ShipmentDelivered ShipmentStatus = "delivered"
	ShipmentCancelled ShipmentStatus = "cancelled"
	ShipmentFailed    ShipmentStatus = "failed"
)

// Active reports whether a hold for this shipment is still legitimate.
func (s ShipmentStatus) Active() bool {
	return s == ShipmentPending || s == ShipmentInTransit
}

// CancelledOrFailed marks shipments whose debits are refund candidates.
func (s ShipmentStatus) CancelledOrFailed() bool {
	return s == ShipmentCancelled || s == ShipmentFailed
}

// Shipment is the status source the ledger core consumes. Courier sync and
// label handling live outside this service and only update these rows.
type Shipment struct {
	ShipmentID uuid.UUID      `gorm:"column:shipment_id;type:uuid;primaryKey" json:"shipment_id"`
	BrandID    uuid.UUID      `gorm:"column:brand_id;type:uuid;not null;index" json:"brand_id"`
	AccountID  *uuid.UUID     `gorm:"column:account_id;type:uuid;index" json:"account_id"`
	Reference  string         `gorm:"column:reference;type:varchar(120);uniqueIndex" json:"reference"`
	Status     ShipmentStatus `gorm:"column:status;type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt  time.Time      `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at" json:"updated_at"`
}

func (Shipment) TableName() string {
	return "shipments"
}

func (s *Shipment) BeforeCreate(tx *gorm.DB) error {
	if s.ShipmentID == uuid.Nil {
		s.ShipmentID = uuid.New()
	}
	return nil
}
