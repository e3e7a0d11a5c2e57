package migrations

import (
	"gorm.io/gorm"
)

// Migration001MintSagas creates the saga record table.
type Migration001MintSagas struct{}

func (m *Migration001MintSagas) Version() string {
	return "001_mint_sagas"
}

func (m *Migration001MintSagas) Description() string {
	return "Create mint saga records"
}

func (m *Migration001MintSagas) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS mint_sagas (
			id VARCHAR(64) PRIMARY KEY,
			phase VARCHAR(32) NOT NULL,
			off_chain_id VARCHAR(255),
			title VARCHAR(255),
			owner VARCHAR(64),
			content_address VARCHAR(255) NOT NULL,
			commitment VARCHAR(66),
			timestamp INTEGER,
			ledger JSON,
			pending_tx_hash VARCHAR(66),
			last_error TEXT,
			failed_phase VARCHAR(32),
			created_at DATETIME,
			updated_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_mint_sagas_phase ON mint_sagas(phase)`,
		`CREATE INDEX IF NOT EXISTS idx_mint_sagas_off_chain_id ON mint_sagas(off_chain_id)`,
		`CREATE INDEX IF NOT EXISTS idx_mint_sagas_owner ON mint_sagas(owner)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration001MintSagas) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS mint_sagas`).Error
}
