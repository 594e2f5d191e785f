package redisbroker

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chatware/chatwidgets-go/broker"
	"github.com/chatware/chatwidgets-go/broker/brokertest"
)

func redisAddr(t *testing.T) string {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	probe := redis.NewClient(&redis.Options{Addr: addr})
	defer probe.Close()
	if err := probe.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	return addr
}

func TestRedisBroker(t *testing.T) {
	addr := redisAddr(t)

	brokertest.Run(t, func(t *testing.T) broker.Broker {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		b, err := New(Config{
			Client: client,
			// Unique prefix per test run so suites cannot see each
			// other's streams.
			KeyPrefix: "test:broker:" + uuid.NewString() + ":",
		})
		if err != nil {
			t.Fatal(err)
		}
		return b
	})
}
