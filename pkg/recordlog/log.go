// Package recordlog persists one row per synchronization run, linking a
// local user to the external IDs found for them.
package recordlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/apipager/pkg/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultStream is the Redis stream holding log entries.
const DefaultStream = "apipager:recordlog"

// Stream entry field names.
const (
	fieldID          = "id"
	fieldUserID      = "user_id"
	fieldExternalID1 = "external_id_1"
	fieldExternalID2 = "external_id_2"
	fieldCreatedAt   = "created_at"
)

// ErrInvalidEntry is returned when an entry lacks a user ID.
var ErrInvalidEntry = errors.New("invalid log entry")

// Entry is one persisted row.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	ExternalID1 string    `json:"external_id_1"`
	ExternalID2 string    `json:"external_id_2"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewEntry returns an entry with a fresh ID and the current time.
func NewEntry(userID, externalID1, externalID2 string) Entry {
	return Entry{
		ID:          uuid.New(),
		UserID:      userID,
		ExternalID1: externalID1,
		ExternalID2: externalID2,
		CreatedAt:   time.Now().UTC(),
	}
}

// Log appends entries.
type Log interface {
	Append(ctx context.Context, entry Entry) error
}

// RedisLog stores entries in a Redis stream.
type RedisLog struct {
	redis  *redis.Client
	stream string
	logger zerolog.Logger
}

// NewRedisLog creates a log on stream. An empty stream uses DefaultStream.
func NewRedisLog(redisClient *redis.Client, stream string) *RedisLog {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisLog{
		redis:  redisClient,
		stream: stream,
		logger: logging.NewLogger(logging.ComponentRecords),
	}
}

// Append adds entry to the stream. A zero ID or CreatedAt is filled in.
func (l *RedisLog) Append(ctx context.Context, entry Entry) error {
	if entry.UserID == "" {
		return fmt.Errorf("%w: user id is required", ErrInvalidEntry)
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	err := l.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: l.stream,
		Values: map[string]interface{}{
			fieldID:          entry.ID.String(),
			fieldUserID:      entry.UserID,
			fieldExternalID1: entry.ExternalID1,
			fieldExternalID2: entry.ExternalID2,
			fieldCreatedAt:   entry.CreatedAt.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis xadd: %w", err)
	}

	l.logger.Debug().
		Str("id", entry.ID.String()).
		Str("user_id", entry.UserID).
		Msg("Log entry appended")
	return nil
}

// Recent returns up to n entries, newest first.
func (l *RedisLog) Recent(ctx context.Context, n int64) ([]Entry, error) {
	if n <= 0 {
		return []Entry{}, nil
	}

	msgs, err := l.redis.XRevRangeN(ctx, l.stream, "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange: %w", err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		entry, err := parseEntry(msg.Values)
		if err != nil {
			l.logger.Warn().Err(err).Str("stream_id", msg.ID).Msg("Skipping malformed log entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func parseEntry(values map[string]interface{}) (Entry, error) {
	str := func(key string) string {
		s, _ := values[key].(string)
		return s
	}

	id, err := uuid.Parse(str(fieldID))
	if err != nil {
		return Entry{}, fmt.Errorf("parse id: %w", err)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, str(fieldCreatedAt))
	if err != nil {
		return Entry{}, fmt.Errorf("parse created_at: %w", err)
	}

	return Entry{
		ID:          id,
		UserID:      str(fieldUserID),
		ExternalID1: str(fieldExternalID1),
		ExternalID2: str(fieldExternalID2),
		CreatedAt:   createdAt,
	}, nil
}
