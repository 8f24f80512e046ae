package statusstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/pdf-rag/internal/models"
)

// RedisConfig configures the Redis status backend.
type RedisConfig struct {
	Addr string
	DB   int
	Key  string
}

// RedisStore keeps each record as a JSON field of one Redis hash.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Key == "" {
		cfg.Key = "pdfrag:status"
	}
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{client: client, key: cfg.Key}, nil
}

func (s *RedisStore) Load(ctx context.Context) (map[string]models.DocumentRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read status hash: %v", models.ErrStorage, err)
	}

	records := make(map[string]models.DocumentRecord, len(fields))
	for id, raw := range fields {
		var rec models.DocumentRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", models.ErrCorruptStatusFile, id, err)
		}
		if !rec.Status.Valid() {
			return nil, fmt.Errorf("%w: record %s has unknown status %q", models.ErrCorruptStatusFile, id, rec.Status)
		}
		rec.ID = id
		records[id] = rec
	}
	return records, nil
}

// Save replaces the hash inside a MULTI/EXEC block.
func (s *RedisStore) Save(ctx context.Context, records map[string]models.DocumentRecord) error {
	values := make(map[string]interface{}, len(records))
	for id, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode record %s: %w", id, err)
		}
		values[id] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(values) > 0 {
			pipe.HSet(ctx, s.key, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: failed to write status hash: %v", models.ErrStorage, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
