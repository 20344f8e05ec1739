// Package profile reads per-user profile fields, such as the external ID a
// user is known by in a remote API.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// KeyPrefix prefixes the Redis hash holding one user's profile fields.
const KeyPrefix = "profile:"

// ErrInvalidUserID is returned for an empty user ID.
var ErrInvalidUserID = errors.New("user id is required")

// Store looks up profile fields. An unknown user or unset field reads as "".
type Store interface {
	Lookup(ctx context.Context, userID, field string) (string, error)
}

// RedisStore keeps each user's profile as a hash at profile:<userID>.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed profile store.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logging.NewLogger(logging.ComponentProfile),
	}
}

// Key returns the Redis key of userID's profile hash.
func Key(userID string) string {
	return KeyPrefix + userID
}

// Lookup returns one profile field of userID.
func (s *RedisStore) Lookup(ctx context.Context, userID, field string) (string, error) {
	if userID == "" {
		return "", ErrInvalidUserID
	}

	value, err := s.redis.HGet(ctx, Key(userID), field).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.logger.Debug().Str("user_id", userID).Str("field", field).Msg("Profile field not set")
			return "", nil
		}
		return "", fmt.Errorf("redis hget: %w", err)
	}
	return value, nil
}

// Set stores profile fields of userID.
func (s *RedisStore) Set(ctx context.Context, userID string, fields map[string]string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	if len(fields) == 0 {
		return nil
	}

	values := make([]any, 0, len(fields)*2)
	for field, value := range fields {
		values = append(values, field, value)
	}
	if err := s.redis.HSet(ctx, Key(userID), values...).Err(); err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	s.logger.Debug().Str("user_id", userID).Int("fields", len(fields)).Msg("Profile updated")
	return nil
}
