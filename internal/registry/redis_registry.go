package registry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inamkkkk/take-it-and-go/internal/config"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

// RedisRegistry keeps one hash per room: field = instance address, value =
// unix ms at which the entry goes stale. Several instances can serve the
// same room.
type RedisRegistry struct {
	client            *redis.Client
	advertiseAddress  string
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	managed           map[domain.RoomKey]struct{}
	mu                sync.RWMutex
	cancel            context.CancelFunc
}

func NewRedisRegistry(client *redis.Client, cfg config.RegistryConfig) *RedisRegistry {
	return &RedisRegistry{
		client:            client,
		advertiseAddress:  cfg.AdvertiseAddress,
		prefix:            cfg.KeyPrefix,
		keyTTL:            cfg.TTL,
		heartbeatInterval: cfg.HeartbeatInterval,
		managed:           make(map[domain.RoomKey]struct{}),
	}
}

func (r *RedisRegistry) keyFor(room domain.RoomKey) string {
	return fmt.Sprintf("%s:room:%s:instances", r.prefix, room)
}

func (r *RedisRegistry) advertise(ctx context.Context, pipe redis.Pipeliner, room domain.RoomKey) {
	key := r.keyFor(room)
	staleAt := time.Now().Add(r.keyTTL).UnixMilli()
	pipe.HSet(ctx, key, r.advertiseAddress, strconv.FormatInt(staleAt, 10))
	pipe.Expire(ctx, key, r.keyTTL)
}

func (r *RedisRegistry) Register(ctx context.Context, room domain.RoomKey) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		r.advertise(ctx, pipe, room)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to register room: %w", err)
	}

	r.mu.Lock()
	r.managed[room] = struct{}{}
	r.mu.Unlock()

	l := log.L()
	l.Debug().Str(log.FieldRoomKey, room.String()).Str("address", r.advertiseAddress).Msg("registered room")
	return nil
}

func (r *RedisRegistry) Deregister(ctx context.Context, room domain.RoomKey) error {
	r.mu.Lock()
	delete(r.managed, room)
	r.mu.Unlock()

	if err := r.client.HDel(ctx, r.keyFor(room), r.advertiseAddress).Err(); err != nil {
		return fmt.Errorf("failed to deregister room: %w", err)
	}

	l := log.L()
	l.Debug().Str(log.FieldRoomKey, room.String()).Msg("deregistered room")
	return nil
}

func (r *RedisRegistry) StartHeartbeat(ctx context.Context, active func() []domain.RoomKey) error {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx, active)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")
	return nil
}

func (r *RedisRegistry) heartbeatLoop(ctx context.Context, active func() []domain.RoomKey) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reconcile(ctx, active())
		}
	}
}

// reconcile re-advertises every active room and withdraws the rest.
func (r *RedisRegistry) reconcile(ctx context.Context, active []domain.RoomKey) {
	live := make(map[domain.RoomKey]struct{}, len(active))
	for _, k := range active {
		live[k] = struct{}{}
	}

	r.mu.Lock()
	var stale []domain.RoomKey
	for k := range r.managed {
		if _, ok := live[k]; !ok {
			stale = append(stale, k)
			delete(r.managed, k)
		}
	}
	for k := range live {
		r.managed[k] = struct{}{}
	}
	r.mu.Unlock()

	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range active {
			r.advertise(ctx, pipe, k)
		}
		for _, k := range stale {
			pipe.HDel(ctx, r.keyFor(k), r.advertiseAddress)
		}
		return nil
	})
	if err != nil {
		l := log.L()
		l.Error().Err(err).Int("rooms", len(active)).Msg("failed to refresh room registry")
	}
}

func (r *RedisRegistry) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}

// Close stops the heartbeat and withdraws every room of this instance.
// The shared Redis client is closed by its owner.
func (r *RedisRegistry) Close() error {
	r.StopHeartbeat()

	r.mu.Lock()
	rooms := make([]domain.RoomKey, 0, len(r.managed))
	for k := range r.managed {
		rooms = append(rooms, k)
	}
	r.managed = make(map[domain.RoomKey]struct{})
	r.mu.Unlock()

	if len(rooms) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range rooms {
			pipe.HDel(ctx, r.keyFor(k), r.advertiseAddress)
		}
		return nil
	})
	return err
}
