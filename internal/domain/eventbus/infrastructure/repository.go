package infrastructure

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"gorm.io/gorm"

	"eduverse-client-go/internal/domain/eventbus/repository"
	"eduverse-client-go/internal/platform/errors"
	"eduverse-client-go/internal/platform/storage"
)

type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository stores events in the domain_events table.
func NewEventRepository(db *gorm.DB) repository.EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Store(ctx context.Context, event repository.Event) error {
	data := event.Data
	if data == nil {
		data = map[string]any{}
	}
	raw, err := sonic.Marshal(data)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.marshal", "failed to marshal event data", err)
	}
	created := event.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	row := &storage.DomainEvent{
		Topic:     event.Topic,
		Subject:   event.Subject,
		UserID:    event.UserID,
		Data:      raw,
		CreatedAt: created,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.store.create", "failed to store event", err)
	}
	return nil
}

func (r *eventRepository) FindBySubject(ctx context.Context, subject string) ([]repository.Event, error) {
	var rows []storage.DomainEvent
	if err := r.db.WithContext(ctx).
		Where("subject = ?", subject).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.subject", "failed to find events by subject", err)
	}
	return convert(rows)
}

func (r *eventRepository) FindByTopic(ctx context.Context, topic string, limit int) ([]repository.Event, error) {
	query := r.db.WithContext(ctx).
		Where("topic = ?", topic).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []storage.DomainEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.topic", "failed to find events by topic", err)
	}
	return convert(rows)
}

func (r *eventRepository) FindByTimeRange(ctx context.Context, start, end time.Time) ([]repository.Event, error) {
	var rows []storage.DomainEvent
	if err := r.db.WithContext(ctx).
		Where("created_at BETWEEN ? AND ?", start, end).
		Order("created_at ASC").Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.find.time", "failed to find events by time range", err)
	}
	return convert(rows)
}

func (r *eventRepository) DeleteOldEvents(ctx context.Context, before time.Time) error {
	if err := r.db.WithContext(ctx).
		Where("created_at < ?", before).
		Delete(&storage.DomainEvent{}).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "event.delete.old", "failed to delete old events", err)
	}
	return nil
}

func (r *eventRepository) Stats(ctx context.Context) (map[string]int64, error) {
	var stats []struct {
		Topic string
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&storage.DomainEvent{}).
		Select("topic, count(*) as count").
		Group("topic").
		Scan(&stats).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "event.stats", "failed to get event stats", err)
	}

	result := make(map[string]int64, len(stats))
	for _, s := range stats {
		result[s.Topic] = s.Count
	}
	return result, nil
}

func convert(rows []storage.DomainEvent) ([]repository.Event, error) {
	events := make([]repository.Event, len(rows))
	for i, row := range rows {
		var data map[string]any
		if len(row.Data) > 0 {
			if err := sonic.Unmarshal(row.Data, &data); err != nil {
				return nil, errors.Wrap(errors.KindStorage, "event.convert.unmarshal", "failed to unmarshal event data", err)
			}
		}
		events[i] = repository.Event{
			ID:        strconv.FormatUint(uint64(row.ID), 10),
			Topic:     row.Topic,
			Subject:   row.Subject,
			UserID:    row.UserID,
			Data:      data,
			CreatedAt: row.CreatedAt,
		}
	}
	return events, nil
}
