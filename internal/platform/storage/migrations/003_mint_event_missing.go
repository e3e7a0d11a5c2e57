package migrations

import (
	"gorm.io/gorm"
)

// Migration003MintEventMissing marks pending mints that confirmed without an event.
type Migration003MintEventMissing struct{}

func (m *Migration003MintEventMissing) Version() string {
	return "003_mint_event_missing"
}

func (m *Migration003MintEventMissing) Description() string {
	return "Flag mints confirmed without a mint event"
}

func (m *Migration003MintEventMissing) Up(db *gorm.DB) error {
	return db.Exec(`ALTER TABLE mint_sagas ADD COLUMN mint_event_missing BOOLEAN NOT NULL DEFAULT 0`).Error
}

func (m *Migration003MintEventMissing) Down(db *gorm.DB) error {
	return db.Exec(`ALTER TABLE mint_sagas DROP COLUMN mint_event_missing`).Error
}
