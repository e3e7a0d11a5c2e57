package storage

import (
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"eduverse-client-go/internal/platform/errors"

	"gorm.io/gorm"
)

// Migration is one versioned schema step.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord marks an applied migration.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// MigrationManager applies registered migrations in version order.
type MigrationManager struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrationManager(db *gorm.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// AddMigration registers migrations. Registration order does not matter.
func (m *MigrationManager) AddMigration(migrations ...Migration) {
	m.migrations = append(m.migrations, migrations...)
	sort.SliceStable(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version() < m.migrations[j].Version()
	})
}

// RunMigrations applies every registered migration that has no record yet.
// Each migration and its record share one transaction.
func (m *MigrationManager) RunMigrations() error {
	if err := m.db.AutoMigrate(&MigrationRecord{}); err != nil {
		return errors.Wrap(errors.KindStorage, "migration.create_table", "failed to create migration table", err)
	}

	applied, err := m.applied()
	if err != nil {
		return err
	}

	for _, migration := range m.migrations {
		if applied[migration.Version()] {
			continue
		}
		err := m.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return errors.Wrap(errors.KindStorage, "migration.up",
					fmt.Sprintf("failed to run migration %s", migration.Version()), err)
			}
			record := &MigrationRecord{
				Version:   migration.Version(),
				Name:      migration.Description(),
				AppliedAt: time.Now(),
			}
			if err := tx.Create(record).Error; err != nil {
				return errors.Wrap(errors.KindStorage, "migration.record", "failed to record migration", err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// RollbackMigration reverts one applied migration.
func (m *MigrationManager) RollbackMigration(version string) error {
	var record MigrationRecord
	if err := m.db.Where("version = ?", version).First(&record).Error; err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.KindStorage, "migration.not_found", fmt.Sprintf("migration %s not applied", version))
		}
		return errors.Wrap(errors.KindStorage, "migration.find_record", "failed to find migration record", err)
	}

	var target Migration
	for _, migration := range m.migrations {
		if migration.Version() == version {
			target = migration
			break
		}
	}
	if target == nil {
		return errors.New(errors.KindStorage, "migration.not_registered", fmt.Sprintf("migration %s not registered", version))
	}

	return m.db.Transaction(func(tx *gorm.DB) error {
		if err := target.Down(tx); err != nil {
			return errors.Wrap(errors.KindStorage, "migration.down",
				fmt.Sprintf("failed to rollback migration %s", version), err)
		}
		if err := tx.Delete(&record).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "migration.delete_record", "failed to delete migration record", err)
		}
		return nil
	})
}

// GetMigrationHistory lists applied migrations, newest first.
func (m *MigrationManager) GetMigrationHistory() ([]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.Order("applied_at DESC").Order("id DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.history", "failed to get migration history", err)
	}
	return records, nil
}

func (m *MigrationManager) applied() (map[string]bool, error) {
	var versions []string
	if err := m.db.Model(&MigrationRecord{}).Pluck("version", &versions).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.get_applied", "failed to get applied migrations", err)
	}
	applied := make(map[string]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}
	return applied, nil
}
