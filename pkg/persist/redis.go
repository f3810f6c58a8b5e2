// Package persist provides the Redis second-level cache behind the query
// store. Successful records are written through and read back on start.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/castwave/client/pkg/query"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const scanCount = 100

// Entry is a persisted record as stored in Redis
type Entry struct {
	Key       string          `json:"key"`
	Data      json.RawMessage `json:"data"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RedisPersister stores query records as JSON values under a key prefix
type RedisPersister struct {
	log         logrus.FieldLogger
	redisClient *redis.Client
	keyPrefix   string
	ttl         time.Duration
}

var _ query.Persister = (*RedisPersister)(nil)

// NewRedisPersister creates a persister. A zero ttl keeps entries forever.
func NewRedisPersister(log logrus.FieldLogger, redisClient *redis.Client, keyPrefix string, ttl time.Duration) *RedisPersister {
	return &RedisPersister{
		log:         log.WithField("component", "persist"),
		redisClient: redisClient,
		keyPrefix:   keyPrefix,
		ttl:         ttl,
	}
}

// Save stores data for key. Nil data deletes the entry.
func (r *RedisPersister) Save(ctx context.Context, key string, data any, updatedAt time.Time) error {
	if data == nil {
		return r.Delete(ctx, key)
	}

	raw, err := encode(data)
	if err != nil {
		return fmt.Errorf("failed to encode record %s: %w", key, err)
	}

	payload, err := json.Marshal(Entry{Key: key, Data: raw, UpdatedAt: updatedAt})
	if err != nil {
		return err
	}

	return r.redisClient.Set(ctx, r.keyPrefix+key, payload, r.ttl).Err()
}

// Get returns the entry for key, or nil on a miss
func (r *RedisPersister) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := r.redisClient.Get(ctx, r.keyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}

		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, err
	}

	return &entry, nil
}

// LoadAll returns every persisted record. Corrupt entries are skipped.
func (r *RedisPersister) LoadAll(ctx context.Context) ([]query.PersistedRecord, error) {
	var out []query.PersistedRecord

	iter := r.redisClient.Scan(ctx, 0, r.keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		data, err := r.redisClient.Get(ctx, iter.Val()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}

			return nil, err
		}

		var entry Entry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			r.log.WithError(err).WithField("redis_key", iter.Val()).Warn("Skipping corrupt cache entry")
			continue
		}

		out = append(out, query.PersistedRecord{
			Key:       entry.Key,
			Data:      entry.Data,
			UpdatedAt: entry.UpdatedAt,
		})
	}

	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache entries: %w", err)
	}

	return out, nil
}

// Delete removes the entry for key
func (r *RedisPersister) Delete(ctx context.Context, key string) error {
	return r.redisClient.Del(ctx, r.keyPrefix+key).Err()
}

// Clear removes every entry under the prefix and returns how many were removed
func (r *RedisPersister) Clear(ctx context.Context) (int, error) {
	n := 0

	iter := r.redisClient.Scan(ctx, 0, r.keyPrefix+"*", scanCount).Iterator()
	for iter.Next(ctx) {
		if err := r.redisClient.Del(ctx, iter.Val()).Err(); err != nil {
			return n, err
		}
		n++
	}

	return n, iter.Err()
}

func encode(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case json.RawMessage:
		return v, nil
	case []byte:
		if json.Valid(v) {
			return v, nil
		}
	}

	return json.Marshal(data)
}
