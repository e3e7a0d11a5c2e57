package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"eduverse-client-go/internal/domain/mint/model"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	cfg    Config
	prefix string
}

// NewRedis constructs a redis-backed saga store.
func NewRedis(cfg Config) (Store, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("redis configuration missing")
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Redis.Prefix
	if prefix == "" {
		prefix = "mint:saga:"
	}
	return &redisStore{client: client, cfg: cfg, prefix: prefix}, nil
}

func (s *redisStore) key(id string) string {
	return s.prefix + id
}

// Save writes the record. Unfinished records are kept without expiry.
func (s *redisStore) Save(ctx context.Context, record *model.Record) error {
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id required")
	}
	data, err := sonic.Marshal(record)
	if err != nil {
		return err
	}
	var expiry time.Duration
	if record.Done() {
		expiry = s.cfg.TTL
	}
	return s.client.Set(ctx, s.key(record.ID), data, expiry).Err()
}

func (s *redisStore) Get(ctx context.Context, id string) (*model.Record, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	var record model.Record
	if err := sonic.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *redisStore) List(ctx context.Context) ([]*model.Record, error) {
	var cursor uint64
	keys := make([]string, 0)
	pattern := s.prefix + "*"
	for {
		res, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, res...)
		if next == 0 {
			break
		}
		cursor = next
	}
	if len(keys) == 0 {
		return []*model.Record{}, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.Record, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		var record model.Record
		if err := sonic.UnmarshalString(raw, &record); err != nil {
			return nil, fmt.Errorf("decode %s: %w", strings.TrimPrefix(keys[i], s.prefix), err)
		}
		out = append(out, &record)
	}
	sortRecords(out)
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

func (s *redisStore) Close(context.Context) error {
	return s.client.Close()
}
