// Package history keeps a short per-user log of asked questions in Redis.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	historyPrefix     = "history:"
	defaultMaxEntries = 100
	defaultExpiry     = 30 * 24 * time.Hour
)

// Status of a finished request
const (
	StatusAnswered = "answered"
	StatusNoData   = "no_data"
	StatusFailed   = "failed"
)

// Entry is one finished request. It records what was asked and which sources answered it,
// never the generated query or the rows.
type Entry struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Department string    `json:"department,omitempty"`
	Prompt     string    `json:"prompt"`
	Lang       string    `json:"lang"`
	Sources    []string  `json:"sources"`
	RowCount   int       `json:"row_count"`
	Status     string    `json:"status"`
	ErrorCode  string    `json:"error_code,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store handles history storage and retrieval
type Store struct {
	redis      *redis.Client
	maxEntries int
	expiry     time.Duration
}

// NewStore creates a history store that keeps the newest maxEntries per user
func NewStore(redisClient *redis.Client, maxEntries int, expiry time.Duration) *Store {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Store{
		redis:      redisClient,
		maxEntries: maxEntries,
		expiry:     expiry,
	}
}

// Record prepends entry to the user's list and trims it
func (s *Store) Record(ctx context.Context, entry Entry) error {
	if entry.UserID == "" {
		return fmt.Errorf("history entry requires a user id")
	}
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Sources == nil {
		entry.Sources = []string{}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	key := historyPrefix + entry.UserID
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(s.maxEntries-1))
		pipe.Expire(ctx, key, s.expiry)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store history entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for userID, newest first
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.maxEntries {
		limit = s.maxEntries
	}

	key := historyPrefix + userID
	items, err := s.redis.LRange(ctx, key, 0, int64(limit-1)).Result()
	if err == redis.Nil {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	entries := make([]Entry, 0, len(items))
	for _, item := range items {
		var entry Entry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Clear removes the user's history
func (s *Store) Clear(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, historyPrefix+userID).Err()
}

// Ping tests the Redis connection
func (s *Store) Ping(ctx context.Context) error {
	return s.redis.Ping(ctx).Err()
}
