package storage

import (
	"time"

	"gorm.io/datatypes"
)

// MintSaga is the persisted form of a mint saga record.
type MintSaga struct {
	ID               string `gorm:"primaryKey;type:varchar(64)"`
	Phase            string `gorm:"index;not null"`
	OffChainID       string `gorm:"index"`
	Title            string
	Owner            string `gorm:"index"`
	ContentAddress   string `gorm:"not null"`
	Commitment       string
	Timestamp        uint64
	Ledger           datatypes.JSON // {"tokenId","txHash"} once known
	PendingTxHash    string
	MintEventMissing bool   `gorm:"not null"`
	LastError        string `gorm:"type:text"`
	FailedPhase      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (MintSaga) TableName() string {
	return "mint_sagas"
}

// DomainEvent is one journaled bus event.
type DomainEvent struct {
	ID        uint           `gorm:"primaryKey"`
	Topic     string         `gorm:"index;not null"`
	Subject   string         `gorm:"index"`
	UserID    string         `gorm:"index"`
	Data      datatypes.JSON `gorm:"not null"`
	CreatedAt time.Time      `gorm:"index"`
}

func (DomainEvent) TableName() string {
	return "domain_events"
}
