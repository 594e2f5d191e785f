// Package redisbroker provides a broker.Broker backed by Redis Streams.
// Every host node connected to the same Redis sees every thread's events,
// which makes it the implementation of choice for horizontally scaled
// deployments.
package redisbroker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatware/chatwidgets-go/broker"
)

// Broker implements broker.Broker over Redis Streams. One stream per
// thread; Redis stream IDs become event IDs, so SSE resumption maps
// directly onto XREAD start positions.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	blockFor  time.Duration
}

// Config configures a Redis broker.
type Config struct {
	// Client is the Redis client to use. Required.
	Client redis.UniversalClient
	// KeyPrefix is prepended to every key. Defaults to "chatwidgets:broker:".
	KeyPrefix string
	// BlockFor bounds each blocking read so streams notice context
	// cancellation promptly. Defaults to one second.
	BlockFor time.Duration
}

// New creates a Redis-backed broker.
func New(cfg Config) (*Broker, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("redisbroker: Config.Client is required")
	}
	keyPrefix := cfg.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "chatwidgets:broker:"
	}
	blockFor := cfg.BlockFor
	if blockFor <= 0 {
		blockFor = time.Second
	}
	return &Broker{client: cfg.Client, keyPrefix: keyPrefix, blockFor: blockFor}, nil
}

// Close closes the underlying Redis client.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, threadID string, ev broker.Event) (string, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("redisbroker: encode event: %w", err)
	}
	streamKey := b.streamKey(threadID)
	eventID, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redisbroker: publish to %s: %w", streamKey, err)
	}
	return eventID, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, threadID string, lastEventID string) (broker.EventStream, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	streamKey := b.streamKey(threadID)
	startID := lastEventID
	if startID == "" {
		// Pin "from now on" to the stream's current tail at subscribe
		// time. Resolving "$" lazily at the first read would drop events
		// published between Subscribe and Next.
		tail, err := b.client.XRevRangeN(ctx, streamKey, "+", "-", 1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redisbroker: inspect %s: %w", streamKey, err)
		}
		if len(tail) > 0 {
			startID = tail[0].ID
		} else {
			startID = "0"
		}
	}
	return &stream{
		broker:    b,
		streamKey: streamKey,
		startID:   startID,
	}, nil
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, threadID string) error {
	streamKey := b.streamKey(threadID)
	if err := b.client.Del(ctx, streamKey).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redisbroker: cleanup %s: %w", streamKey, err)
	}
	return nil
}

func (b *Broker) streamKey(threadID string) string {
	return b.keyPrefix + "stream:" + threadID
}

// stream reads one Redis stream with XREAD, without a consumer group, so
// every subscriber sees every event.
type stream struct {
	broker    *Broker
	streamKey string
	startID   string
	pending   []broker.Envelope
	closed    atomic.Bool
}

// Next implements broker.EventStream.
func (s *stream) Next(ctx context.Context) (broker.Envelope, error) {
	for {
		if s.closed.Load() {
			return broker.Envelope{}, io.EOF
		}
		if len(s.pending) > 0 {
			ev := s.pending[0]
			s.pending = s.pending[1:]
			s.startID = ev.ID
			return ev, nil
		}
		if ctx.Err() != nil {
			return broker.Envelope{}, ctx.Err()
		}

		streams, err := s.broker.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{s.streamKey, s.startID},
			Count:   16,
			Block:   s.broker.blockFor,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Block window elapsed with nothing new.
				continue
			}
			if ctx.Err() != nil {
				return broker.Envelope{}, ctx.Err()
			}
			return broker.Envelope{}, fmt.Errorf("redisbroker: read %s: %w", s.streamKey, err)
		}
		for _, str := range streams {
			for _, msg := range str.Messages {
				data, ok := msg.Values["data"].(string)
				if !ok {
					// Foreign entry in the stream; skip past it.
					s.startID = msg.ID
					continue
				}
				s.pending = append(s.pending, broker.Envelope{ID: msg.ID, Data: []byte(data)})
			}
		}
	}
}

// Close implements broker.EventStream.
func (s *stream) Close() error {
	s.closed.Store(true)
	return nil
}

var (
	_ broker.Broker      = (*Broker)(nil)
	_ broker.EventStream = (*stream)(nil)
)
