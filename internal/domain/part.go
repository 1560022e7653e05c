package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Part is a catalog row. The ledger core only reads DefaultUnitCost from it
// when a movement arrives without an explicit cost.
type Part struct {
	PartID          uuid.UUID       `gorm:"column:part_id;type:uuid;primaryKey" json:"part_id"`
	BrandID         uuid.UUID       `gorm:"column:brand_id;type:uuid;not null;index" json:"brand_id"`
	SKU             string          `gorm:"column:sku;type:varchar(64);not null" json:"sku"`
	Name            string          `gorm:"column:name;type:varchar(160);not null" json:"name"`
	DefaultUnitCost decimal.Decimal `gorm:"column:default_unit_cost;type:decimal(18,4);not null;default:0" json:"default_unit_cost"`
	CreatedAt       time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Part) TableName() string {
	return "parts"
}

func (p *Part) BeforeCreate(tx *gorm.DB) error {
	if p.PartID == uuid.Nil {
		p.PartID = uuid.New()
	}
	return nil
}
