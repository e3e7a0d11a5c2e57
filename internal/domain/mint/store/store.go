package store

import (
	"context"
	stderrors "errors"
	"time"

	"eduverse-client-go/internal/domain/mint/model"
)

// ErrNotFound is returned by Get when no record has the id.
var ErrNotFound = stderrors.New("mint record not found")

// Store persists saga records between process runs.
type Store interface {
	Save(ctx context.Context, record *model.Record) error
	Get(ctx context.Context, id string) (*model.Record, error)
	List(ctx context.Context) ([]*model.Record, error)
	Delete(ctx context.Context, id string) error
	Close(ctx context.Context) error
}

// Config describes the high level store selection parameters.
// TTL applies only to finalized records; unfinished ones never expire.
type Config struct {
	Driver string
	TTL    time.Duration
	Redis  *RedisConfig
	SQLite *SQLiteConfig
}

// SQLiteConfig locates the database file.
type SQLiteConfig struct {
	DSN string
}

// RedisConfig captures connection options.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
}
