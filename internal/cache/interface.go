package cache

import (
	"context"
	"errors"
	"time"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// HistoryCache holds recent history pages per room. Every page of a room is
// dropped by Invalidate.
type HistoryCache interface {
	Get(ctx context.Context, room domain.RoomKey, limit int) ([]domain.Message, error)
	Set(ctx context.Context, room domain.RoomKey, limit int, msgs []domain.Message, ttl time.Duration) error
	Invalidate(ctx context.Context, room domain.RoomKey) error
}
