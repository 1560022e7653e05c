package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EntryKind is the closed set of wallet ledger directions.
type EntryKind string

const (
	EntryCredit EntryKind = "CREDIT"
	EntryDebit  EntryKind = "DEBIT"
)

// EntryClass distinguishes why a credit or debit exists. Correction entries
// come only from reconciliation and must never look like ordinary credits.
type EntryClass string

const (
	ClassStandard   EntryClass = "STANDARD"
	ClassRefund     EntryClass = "REFUND"
	ClassCorrection EntryClass = "CORRECTION"
)

// WalletBalance is the projected current position for one account. A
// negative balance is a defect state surfaced by reconciliation, never a
// state any coordinator operation produces.
type WalletBalance struct {
	AccountID        uuid.UUID       `gorm:"column:account_id;type:uuid;primaryKey" json:"account_id"`
	Balance          decimal.Decimal `gorm:"column:balance;type:decimal(18,2);not null;default:0" json:"balance"`
	LifetimeCredited decimal.Decimal `gorm:"column:lifetime_credited;type:decimal(18,2);not null;default:0" json:"lifetime_credited"`
	LifetimeDebited  decimal.Decimal `gorm:"column:lifetime_debited;type:decimal(18,2);not null;default:0" json:"lifetime_debited"`
	Version          int64           `gorm:"column:version;not null;default:0" json:"-"`
	LastMovementAt   *time.Time      `gorm:"column:last_movement_at" json:"last_movement_at"`
	CreatedAt        time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (WalletBalance) TableName() string {
	return "wallet_balances"
}

// WalletLedgerEntry is one immutable financial movement. Same append-only
// contract as the inventory ledger.
type WalletLedgerEntry struct {
	EntryID      uuid.UUID       `gorm:"column:entry_id;type:uuid;primaryKey" json:"entry_id"`
	AccountID    uuid.UUID       `gorm:"column:account_id;type:uuid;not null;index:idx_wallet_ledger_account" json:"account_id"`
	Kind         EntryKind       `gorm:"column:kind;type:varchar(10);not null" json:"kind"`
	Class        EntryClass      `gorm:"column:class;type:varchar(12);not null;default:'STANDARD'" json:"class"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(18,2);not null" json:"amount"`
	BalanceAfter decimal.Decimal `gorm:"column:balance_after;type:decimal(18,2);not null" json:"balance_after"`
	Reference    string          `gorm:"column:reference;type:varchar(120);index" json:"reference"`
	Description  string          `gorm:"column:description;type:varchar(255)" json:"description"`
	Meta         datatypes.JSON  `gorm:"column:meta" json:"meta"`
	CreatedAt    time.Time       `gorm:"column:created_at" json:"created_at"`
}

func (WalletLedgerEntry) TableName() string {
	return "wallet_ledger_entries"
}

func (e *WalletLedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.EntryID == uuid.Nil {
		e.EntryID = uuid.New()
	}
	return nil
}

// WalletMeta is the versioned payload schema for wallet entries.
type WalletMeta struct {
	SchemaVersion int               `json:"schema_version"`
	Gateway       string            `json:"gateway,omitempty"`
	GatewayRef    string            `json:"gateway_ref,omitempty"`
	Correction    bool              `json:"correction,omitempty"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

const walletMetaSchemaVersion = 1

func (m WalletMeta) JSON() (datatypes.JSON, error) {
	m.SchemaVersion = walletMetaSchemaVersion
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
