package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"eduverse-client-go/internal/domain/mint/model"
)

type memoryStore struct {
	items    map[string]*model.Record
	mutex    sync.RWMutex
	ttl      time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemory builds an in-process saga store. Records do not survive a restart.
func NewMemory(cfg Config) Store {
	s := &memoryStore{
		items: make(map[string]*model.Record),
		ttl:   cfg.TTL,
		stop:  make(chan struct{}),
	}
	if s.ttl > 0 {
		go s.gcLoop(gcInterval(s.ttl))
	}
	return s
}

func gcInterval(ttl time.Duration) time.Duration {
	interval := ttl / 2
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (s *memoryStore) gcLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.prune(time.Now())
		case <-s.stop:
			return
		}
	}
}

func (s *memoryStore) prune(now time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for id, r := range s.items {
		if s.expired(r, now) {
			delete(s.items, id)
		}
	}
}

func (s *memoryStore) expired(r *model.Record, now time.Time) bool {
	return s.ttl > 0 && r.Done() && now.After(r.UpdatedAt.Add(s.ttl))
}

func (s *memoryStore) Save(_ context.Context, record *model.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id required")
	}
	s.mutex.Lock()
	s.items[record.ID] = record.Clone()
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (*model.Record, error) {
	s.mutex.RLock()
	r, ok := s.items[id]
	s.mutex.RUnlock()
	if !ok || s.expired(r, time.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.Clone(), nil
}

func (s *memoryStore) List(_ context.Context) ([]*model.Record, error) {
	now := time.Now()
	s.mutex.RLock()
	out := make([]*model.Record, 0, len(s.items))
	for _, r := range s.items {
		if !s.expired(r, now) {
			out = append(out, r.Clone())
		}
	}
	s.mutex.RUnlock()
	sortRecords(out)
	return out, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mutex.Lock()
	delete(s.items, id)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Close(context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

// sortRecords orders records oldest first, ties broken by id.
func sortRecords(records []*model.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}
