package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// InventoryBalance is the projected current stock position for one
// (brand, part) pair. Mutated only by the transaction coordinator; the
// version column backs the compare-and-swap on every write.
type InventoryBalance struct {
	BrandID        uuid.UUID       `gorm:"column:brand_id;type:uuid;primaryKey" json:"brand_id"`
	PartID         uuid.UUID       `gorm:"column:part_id;type:uuid;primaryKey" json:"part_id"`
	OnHand         int64           `gorm:"column:on_hand;not null;default:0" json:"on_hand"`
	Reserved       int64           `gorm:"column:reserved;not null;default:0" json:"reserved"`
	AverageCost    decimal.Decimal `gorm:"column:average_cost;type:decimal(18,4);not null;default:0" json:"average_cost"`
	LastCost       decimal.Decimal `gorm:"column:last_cost;type:decimal(18,4);not null;default:0" json:"last_cost"`
	Version        int64           `gorm:"column:version;not null;default:0" json:"-"`
	LastMovementAt *time.Time      `gorm:"column:last_movement_at" json:"last_movement_at"`
	CreatedAt      time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (InventoryBalance) TableName() string {
	return "inventory_balances"
}

// Available is always derived, never stored.
func (b *InventoryBalance) Available() int64 {
	return b.OnHand - b.Reserved
}

// InventoryLedgerEntry is one immutable movement record. Rows are only ever
// inserted; there is no update or delete path anywhere in the codebase.
type InventoryLedgerEntry struct {
	EntryID      uuid.UUID       `gorm:"column:entry_id;type:uuid;primaryKey" json:"entry_id"`
	BrandID      uuid.UUID       `gorm:"column:brand_id;type:uuid;not null;index:idx_inventory_ledger_key" json:"brand_id"`
	PartID       uuid.UUID       `gorm:"column:part_id;type:uuid;not null;index:idx_inventory_ledger_key" json:"part_id"`
	Kind         MovementKind    `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Quantity     int64           `gorm:"column:quantity;not null" json:"quantity"`
	Source       string          `gorm:"column:source;type:varchar(120)" json:"source"`
	Destination  string          `gorm:"column:destination;type:varchar(120)" json:"destination"`
	UnitCost     decimal.Decimal `gorm:"column:unit_cost;type:decimal(18,4);not null;default:0" json:"unit_cost"`
	TotalValue   decimal.Decimal `gorm:"column:total_value;type:decimal(18,2);not null;default:0" json:"total_value"`
	BalanceAfter int64           `gorm:"column:balance_after;not null" json:"balance_after"`
	ShipmentID   *uuid.UUID      `gorm:"column:shipment_id;type:uuid;index" json:"shipment_id"`
	Actor        string          `gorm:"column:actor;type:varchar(120)" json:"actor"`
	Meta         datatypes.JSON  `gorm:"column:meta" json:"meta"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (InventoryLedgerEntry) TableName() string {
	return "inventory_ledger_entries"
}

func (e *InventoryLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.EntryID == uuid.Nil {
		e.EntryID = uuid.New()
	}
	return nil
}

// MovementMeta is the single schema for auxiliary movement data. It replaces
// free-form JSON blobs: every producer marshals this struct, every consumer
// unmarshals it, and SchemaVersion gates future shape changes.
type MovementMeta struct {
	SchemaVersion int               `json:"schema_version"`
	Note          string            `json:"note,omitempty"`
	ExternalRef   string            `json:"external_ref,omitempty"`
	Correction    bool              `json:"correction,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

const movementMetaSchemaVersion = 1

// JSON serializes the payload with the current schema version stamped in.
func (m MovementMeta) JSON() (datatypes.JSON, error) {
	m.SchemaVersion = movementMetaSchemaVersion
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
