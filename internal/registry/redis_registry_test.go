package registry

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
)

func newUnreachableRegistry(t *testing.T) *RedisRegistry {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { client.Close() })
	return NewRedisRegistry(client, config.RegistryConfig{
		KeyPrefix:         "chat",
		AdvertiseAddress:  "10.0.0.1:3000",
		TTL:               30 * time.Second,
		HeartbeatInterval: time.Hour,
	})
}

func TestRedisRegistry_KeyFor(t *testing.T) {
	r := newUnreachableRegistry(t)
	require.Equal(t, "chat:room:chat_u1_u2:instances", r.keyFor(domain.DirectRoom("u2", "u1")))
}

func TestRedisRegistry_ReconcileTracksActiveRooms(t *testing.T) {
	req := require.New(t)
	r := newUnreachableRegistry(t)

	// Given a failed registration, nothing is tracked
	req.Error(r.Register(context.Background(), domain.DeliveryRoom("del-1")))
	req.Empty(r.managed)

	// When the heartbeat reconciles, the active set is adopted even though
	// Redis is down, so the next tick retries it
	r.reconcile(context.Background(), []domain.RoomKey{domain.DeliveryRoom("del-1"), domain.DeliveryRoom("del-2")})
	req.Len(r.managed, 2)

	// And rooms that emptied are dropped
	r.reconcile(context.Background(), []domain.RoomKey{domain.DeliveryRoom("del-2")})
	req.Len(r.managed, 1)
	_, ok := r.managed[domain.DeliveryRoom("del-2")]
	req.True(ok)
}

func TestNoopRegistry(t *testing.T) {
	var r Registry = NoopRegistry{}
	req := require.New(t)
	req.NoError(r.Register(context.Background(), "delivery_x"))
	req.NoError(r.Deregister(context.Background(), "delivery_x"))
	req.NoError(r.StartHeartbeat(context.Background(), func() []domain.RoomKey { return nil }))
	r.StopHeartbeat()
	req.NoError(r.Close())
}
