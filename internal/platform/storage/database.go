package storage

import (
	"os"
	"path/filepath"
	"strings"

	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/storage/migrations"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens the sqlite database at dsn and applies all migrations.
// A plain file path gets its parent directory created first.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New(errors.KindStorage, "storage.open", "sqlite dsn required")
	}
	if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
			}
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the registered schema migrations to db.
func Migrate(db *gorm.DB) error {
	return NewSchemaManager(db).RunMigrations()
}

// NewSchemaManager returns a MigrationManager with every schema migration
// of the client registered.
func NewSchemaManager(db *gorm.DB) *MigrationManager {
	manager := NewMigrationManager(db)
	manager.AddMigration(
		&migrations.Migration001MintSagas{},
		&migrations.Migration002DomainEvents{},
		&migrations.Migration003MintEventMissing{},
	)
	return manager
}

// Close releases the pooled connection behind db.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
