package migrations

import (
	"gorm.io/gorm"
)

// Migration002DomainEvents creates the event journal.
type Migration002DomainEvents struct{}

func (m *Migration002DomainEvents) Version() string {
	return "002_domain_events"
}

func (m *Migration002DomainEvents) Description() string {
	return "Create domain event journal"
}

func (m *Migration002DomainEvents) Up(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE TABLE IF NOT EXISTS domain_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			topic VARCHAR(255) NOT NULL,
			subject VARCHAR(255),
			user_id VARCHAR(255),
			data JSON NOT NULL,
			created_at DATETIME
		)
	`).Error; err != nil {
		return err
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_domain_events_topic ON domain_events(topic)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_subject ON domain_events(subject)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_user_id ON domain_events(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_domain_events_created_at ON domain_events(created_at)`,
	} {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration002DomainEvents) Down(db *gorm.DB) error {
	return db.Exec(`DROP TABLE IF EXISTS domain_events`).Error
}
