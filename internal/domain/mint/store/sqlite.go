package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eduverse-client-go/internal/domain/mint/model"
	"eduverse-client-go/internal/platform/storage"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
}

// NewSQLite builds a SQLite-backed saga store. The mint_sagas table must
// already exist; storage.Open migrates it.
func NewSQLite(db *gorm.DB, cfg Config) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	return &sqliteStore{db: db, ttl: cfg.TTL}, nil
}

func (s *sqliteStore) Save(ctx context.Context, record *model.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id required")
	}
	row, err := toRow(record)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
}

func (s *sqliteStore) Get(ctx context.Context, id string) (*model.Record, error) {
	var row storage.MintSaga
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errorsIsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return fromRow(row)
}

func (s *sqliteStore) List(ctx context.Context) ([]*model.Record, error) {
	if err := s.cleanupExpired(ctx); err != nil {
		return nil, err
	}
	var rows []storage.MintSaga
	if err := s.db.WithContext(ctx).Order("created_at ASC").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Record, 0, len(rows))
	for _, row := range rows {
		r, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&storage.MintSaga{}).Error
}

func (s *sqliteStore) Close(context.Context) error {
	return nil
}

func (s *sqliteStore) cleanupExpired(ctx context.Context) error {
	if s.ttl <= 0 {
		return nil
	}
	return s.db.WithContext(ctx).
		Where("phase = ? AND updated_at < ?", string(model.PhaseFinalized), time.Now().Add(-s.ttl)).
		Delete(&storage.MintSaga{}).
		Error
}

func toRow(r *model.Record) (*storage.MintSaga, error) {
	row := &storage.MintSaga{
		ID:               r.ID,
		Phase:            string(r.Phase),
		OffChainID:       r.OffChainID,
		Title:            r.Title,
		Owner:            r.Owner,
		ContentAddress:   r.ContentAddress,
		Commitment:       r.Commitment,
		Timestamp:        r.Timestamp,
		PendingTxHash:    r.PendingTxHash,
		MintEventMissing: r.MintEventMissing,
		LastError:        r.LastError,
		FailedPhase:      string(r.FailedPhase),
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Ledger != nil {
		data, err := sonic.Marshal(r.Ledger)
		if err != nil {
			return nil, err
		}
		row.Ledger = data
	}
	return row, nil
}

func fromRow(row storage.MintSaga) (*model.Record, error) {
	r := &model.Record{
		ID:               row.ID,
		Phase:            model.Phase(row.Phase),
		OffChainID:       row.OffChainID,
		Title:            row.Title,
		Owner:            row.Owner,
		ContentAddress:   row.ContentAddress,
		Commitment:       row.Commitment,
		Timestamp:        row.Timestamp,
		PendingTxHash:    row.PendingTxHash,
		MintEventMissing: row.MintEventMissing,
		LastError:        row.LastError,
		FailedPhase:      model.Step(row.FailedPhase),
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
	if len(row.Ledger) > 0 && string(row.Ledger) != "null" {
		var ref model.LedgerReference
		if err := sonic.Unmarshal(row.Ledger, &ref); err != nil {
			return nil, fmt.Errorf("decode ledger reference of %s: %w", row.ID, err)
		}
		r.Ledger = &ref
	}
	return r, nil
}

func errorsIsNotFound(err error) bool {
	return err != nil && errors.Is(err, gorm.ErrRecordNotFound)
}
