package database

import (
	"cargohold-backend/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open opens a GORM DB from DSN. PreferSimpleProtocol disables prepared
// statement caching to avoid 42P05 ("prepared statement already exists")
// behind connection poolers (PgBouncer, Supabase, Render). TranslateError is
// required: the projectors rely on gorm.ErrDuplicatedKey to turn unique
// violations into concurrency conflicts.
func Open(dsn string) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{TranslateError: true})
}

// AutoMigrate runs migrations for the ledger core and its collaborators.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.InventoryBalance{},
		&domain.InventoryLedgerEntry{},
		&domain.WalletBalance{},
		&domain.WalletLedgerEntry{},
		&domain.ReservationHold{},
		&domain.Part{},
		&domain.Shipment{},
	)
}
