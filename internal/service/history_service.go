package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/inamkkkk/take-it-and-go/internal/cache"
	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/metrics"
	"github.com/inamkkkk/take-it-and-go/internal/participant"
	"github.com/inamkkkk/take-it-and-go/internal/repository"
	"github.com/inamkkkk/take-it-and-go/pkg/log"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

type historyServiceImpl struct {
	repo         repository.MessageRepository
	cache        cache.HistoryCache // nil when caching is disabled
	cacheTTL     time.Duration
	storeTimeout time.Duration
	access       accessChecker
	sf           singleflight.Group
}

// NewHistoryService builds the history reader. msgCache may be nil.
func NewHistoryService(
	repo repository.MessageRepository,
	msgCache cache.HistoryCache,
	cacheTTL time.Duration,
	directory participant.Directory,
	storeTimeout time.Duration,
) HistoryService {
	return &historyServiceImpl{
		repo:         repo,
		cache:        msgCache,
		cacheTTL:     cacheTTL,
		storeTimeout: storeTimeout,
		access:       accessChecker{directory: directory, timeout: storeTimeout},
	}
}

// ClampLimit applies the default and the upper bound to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func (s *historyServiceImpl) GetHistory(ctx context.Context, caller domain.Identity, conv domain.Conversation, limit int) (domain.RoomKey, []domain.Message, error) {
	key, err := domain.Resolve(conv)
	if err != nil {
		return "", nil, err
	}
	if err := s.access.authorize(ctx, caller, conv); err != nil {
		return "", nil, err
	}

	msgs, err := s.RoomHistory(ctx, key, conv, ClampLimit(limit))
	if err != nil {
		return "", nil, err
	}
	return key, msgs, nil
}

func (s *historyServiceImpl) RoomHistory(ctx context.Context, room domain.RoomKey, conv domain.Conversation, limit int) ([]domain.Message, error) {
	sfKey := room.String() + ":" + strconv.Itoa(limit)

	// The fetch is shared by every waiter on the key, so it must not end
	// with the first caller.
	result, err, _ := s.sf.Do(sfKey, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
		defer cancel()
		return s.fetchWithCache(fetchCtx, room, conv, limit)
	})
	if err != nil {
		return nil, err
	}

	msgs, ok := result.([]domain.Message)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return msgs, nil
}

func (s *historyServiceImpl) fetchWithCache(ctx context.Context, room domain.RoomKey, conv domain.Conversation, limit int) ([]domain.Message, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, room, limit)
		if err == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return cached, nil
		}
		if errors.Is(err, cache.ErrCacheMiss) {
			metrics.CacheLookups.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheLookups.WithLabelValues("error").Inc()
			l := log.Ctx(ctx)
			l.Warn().Err(err).Str(log.FieldRoomKey, room.String()).Msg("cache get error")
		}
	}

	start := time.Now()
	msgs, err := s.repo.Query(ctx, conv, limit)
	metrics.ObserveStore("query", start)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidDescriptor) {
			return nil, err
		}
		metrics.PersistenceFailures.WithLabelValues("query").Inc()
		return nil, fmt.Errorf("%w: failed to query history: %v", domain.ErrPersistenceFailure, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}

	if s.cache != nil {
		go func() {
			cacheCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := s.cache.Set(cacheCtx, room, limit, msgs, s.cacheTTL); err != nil {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldRoomKey, room.String()).Msg("cache set error")
			}
		}()
	}
	return msgs, nil
}

// Invalidate drops cached pages of room. Failures only shorten the
// freshness of the cache to its TTL.
func (s *historyServiceImpl) Invalidate(ctx context.Context, room domain.RoomKey) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := s.cache.Invalidate(ctx, room); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomKey, room.String()).Msg("cache invalidate error")
	}
}
