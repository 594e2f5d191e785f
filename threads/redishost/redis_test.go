package redishost

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chatware/chatwidgets-go/threads"
	"github.com/chatware/chatwidgets-go/threads/storetest"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	probe := redis.NewClient(&redis.Options{Addr: addr})
	if err := probe.Ping(context.Background()).Err(); err != nil {
		probe.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	probe.Close()

	storetest.Run(t, func(t *testing.T) threads.Store {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		s, err := New(Config{
			Client:    client,
			KeyPrefix: "test:threads:" + uuid.NewString() + ":",
		})
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}
