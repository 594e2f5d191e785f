// Package redishost provides a Redis-backed threads.Store. Each thread's
// history is a Redis list of JSON-encoded turns, so appends are O(1) and
// reads return the thread in order with one LRANGE.
package redishost

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"

	"github.com/chatware/chatwidgets-go/threads"
)

// Config for the Redis-backed store. Defaults can be loaded via envdecode.
type Config struct {
	// RedisAddr like "localhost:6379". ENV: REDIS_ADDR
	RedisAddr string `env:"REDIS_ADDR,default=localhost:6379"`
	// KeyPrefix for all keys. ENV: THREADS_KEY_PREFIX
	KeyPrefix string `env:"THREADS_KEY_PREFIX,default=chatwidgets:threads:"`
	// Client overrides the address-based client when set. Not read from
	// the environment.
	Client redis.UniversalClient
}

// Store implements threads.Store over Redis lists.
type Store struct {
	client    redis.UniversalClient
	keyPrefix string
}

// New builds a store from config, pinging Redis to fail fast on a bad
// address.
func New(cfg Config) (*Store, error) {
	client := cfg.Client
	if client == nil {
		addr := cfg.RedisAddr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{Addr: addr})
	}
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redishost: redis ping: %w", err)
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "chatwidgets:threads:"
	}
	return &Store{client: client, keyPrefix: prefix}, nil
}

// NewFromEnv builds a store with Config populated via envdecode.
func NewFromEnv() (*Store, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("redishost: decode env: %w", err)
	}
	return New(cfg)
}

// Close closes the Redis client.
func (s *Store) Close() error { return s.client.Close() }

func (s *Store) turnsKey(threadID string) string { return s.keyPrefix + "turns:" + threadID }

// AppendTurn implements threads.Store.
func (s *Store) AppendTurn(ctx context.Context, turn *threads.Turn) error {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("redishost: encode turn: %w", err)
	}
	if err := s.client.RPush(ctx, s.turnsKey(turn.ThreadID), data).Err(); err != nil {
		return fmt.Errorf("redishost: append turn: %w", err)
	}
	return nil
}

// ListTurns implements threads.Store.
func (s *Store) ListTurns(ctx context.Context, threadID string) ([]threads.Turn, error) {
	raw, err := s.client.LRange(ctx, s.turnsKey(threadID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redishost: list turns: %w", err)
	}
	out := make([]threads.Turn, 0, len(raw))
	for _, item := range raw {
		var turn threads.Turn
		if err := json.Unmarshal([]byte(item), &turn); err != nil {
			return nil, fmt.Errorf("redishost: decode stored turn: %w", err)
		}
		out = append(out, turn)
	}
	return out, nil
}

// DeleteThread implements threads.Store.
func (s *Store) DeleteThread(ctx context.Context, threadID string) error {
	if err := s.client.Del(ctx, s.turnsKey(threadID)).Err(); err != nil {
		return fmt.Errorf("redishost: delete thread: %w", err)
	}
	return nil
}

var _ threads.Store = (*Store)(nil)
