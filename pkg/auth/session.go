package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Session is the BaaS session returned by the login endpoint.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	// ExpiresAt is a unix timestamp in seconds; zero means no expiry.
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

// Expired reports whether the session is past its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return expired(s.AccessToken, now)
	}

	return !now.Before(time.Unix(s.ExpiresAt, 0))
}

// SessionStore persists the signed-in session between runs
type SessionStore interface {
	// Get returns the stored session, or nil when signed out
	Get(ctx context.Context) (*Session, error)

	// Set stores the session, replacing any previous one
	Set(ctx context.Context, session Session) error

	// Delete signs out
	Delete(ctx context.Context) error

	// Token returns the access token of a live session, or ""
	Token(ctx context.Context) (string, error)
}

// RedisSessionStore keeps the session as a JSON blob under a single Redis key.
type RedisSessionStore struct {
	log   logrus.FieldLogger
	redis *redis.Client
	key   string
	now   func() time.Time
	group singleflight.Group
}

// NewRedisSessionStore creates a Redis-backed session store
func NewRedisSessionStore(log logrus.FieldLogger, redisClient *redis.Client, key string) *RedisSessionStore {
	return &RedisSessionStore{
		log:   log.WithField("component", "session_store"),
		redis: redisClient,
		key:   key,
		now:   time.Now,
	}
}

// Get implements SessionStore
func (r *RedisSessionStore) Get(ctx context.Context) (*Session, error) {
	val, err := r.redis.Get(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.log.Debug("No stored session")
			return nil, nil
		}
		r.log.WithError(err).Error("Failed to get session from Redis")
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal([]byte(val), &session); err != nil {
		r.log.WithError(err).Error("Failed to decode stored session")
		return nil, fmt.Errorf("failed to decode session: %w", err)
	}

	return &session, nil
}

// Set implements SessionStore. The Redis key expires with the session.
func (r *RedisSessionStore) Set(ctx context.Context, session Session) error {
	if session.AccessToken == "" {
		return ErrNoToken
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	var ttl time.Duration
	if session.ExpiresAt > 0 {
		ttl = time.Until(time.Unix(session.ExpiresAt, 0))
		if ttl <= 0 {
			return r.Delete(ctx)
		}
	}

	if err := r.redis.Set(ctx, r.key, data, ttl).Err(); err != nil {
		r.log.WithError(err).Error("Failed to store session in Redis")
		return fmt.Errorf("failed to set session: %w", err)
	}

	r.log.WithField("expires_at", session.ExpiresAt).Debug("Stored session")

	return nil
}

// Delete implements SessionStore
func (r *RedisSessionStore) Delete(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		r.log.WithError(err).Error("Failed to delete session from Redis")
		return fmt.Errorf("failed to delete session: %w", err)
	}

	r.log.Debug("Deleted session")

	return nil
}

// Token implements SessionStore. Concurrent lookups share one Redis round
// trip, which outlives any single caller's cancellation; each caller stops
// waiting when its own ctx is done.
func (r *RedisSessionStore) Token(ctx context.Context) (string, error) {
	shared := context.WithoutCancel(ctx)

	ch := r.group.DoChan(r.key, func() (any, error) {
		session, err := r.Get(shared)
		if err != nil || session == nil {
			return "", err
		}

		if session.Expired(r.now()) {
			r.log.Debug("Stored session has expired")
			return "", nil
		}

		return session.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}

		return res.Val.(string), nil
	}
}

// Verify interface compliance at compile time
var (
	_ SessionStore = (*RedisSessionStore)(nil)
	_ Source       = (*RedisSessionStore)(nil)
)
