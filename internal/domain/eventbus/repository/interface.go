package repository

import (
	"context"
	"time"
)

// EventRepository persists journaled bus events.
type EventRepository interface {
	Store(ctx context.Context, event Event) error

	// FindBySubject returns events about one subject (a mint record id), oldest first.
	FindBySubject(ctx context.Context, subject string) ([]Event, error)

	// FindByTopic returns the newest events on topic; limit <= 0 means all.
	FindByTopic(ctx context.Context, topic string, limit int) ([]Event, error)

	FindByTimeRange(ctx context.Context, start, end time.Time) ([]Event, error)

	DeleteOldEvents(ctx context.Context, before time.Time) error

	// Stats counts events per topic.
	Stats(ctx context.Context) (map[string]int64, error)
}

// Event is one journaled notification. Data never carries credentials.
type Event struct {
	ID        string
	Topic     string
	Subject   string
	UserID    string
	Data      map[string]any
	CreatedAt time.Time
}
