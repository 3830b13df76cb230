package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
)

// MemoryMessageRepository keeps messages in process memory.
type MemoryMessageRepository struct {
	mu     sync.RWMutex
	byID   map[string]*domain.Message
	byRoom map[string][]*domain.Message // ascending by SentAt, then ID
}

func NewMemoryMessageRepository() *MemoryMessageRepository {
	return &MemoryMessageRepository{
		byID:   make(map[string]*domain.Message),
		byRoom: make(map[string][]*domain.Message),
	}
}

func (r *MemoryMessageRepository) Append(ctx context.Context, msg *domain.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[msg.ID]; ok {
		return fmt.Errorf("duplicate message id %s", msg.ID)
	}
	stored := msg.Clone()
	r.byID[stored.ID] = stored

	if key := roomKeyOf(stored); key != "" {
		list := r.byRoom[key]
		i := sort.Search(len(list), func(i int) bool {
			if list[i].SentAt.Equal(stored.SentAt) {
				return list[i].ID > stored.ID
			}
			return list[i].SentAt.After(stored.SentAt)
		})
		list = append(list, nil)
		copy(list[i+1:], list[i:])
		list[i] = stored
		r.byRoom[key] = list
	}
	return nil
}

func (r *MemoryMessageRepository) Find(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	msg, ok := r.byID[id]
	if !ok {
		return nil, ErrMessageNotFound
	}
	return msg.Clone(), nil
}

func (r *MemoryMessageRepository) Query(ctx context.Context, conv domain.Conversation, limit int) ([]domain.Message, error) {
	key, err := domain.Resolve(conv)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.byRoom[key.String()]
	out := make([]domain.Message, 0, len(list))
	for _, m := range list {
		out = append(out, *m.Clone())
	}
	return tail(out, limit), nil
}

func (r *MemoryMessageRepository) MarkReadBy(ctx context.Context, id, userID string) (*domain.Message, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	msg, ok := r.byID[id]
	if !ok {
		return nil, false, ErrMessageNotFound
	}
	if msg.IsReadBy(userID) {
		return msg.Clone(), false, nil
	}
	msg.ReadBy = append(msg.ReadBy, userID)
	return msg.Clone(), true, nil
}

func (r *MemoryMessageRepository) Close() error {
	return nil
}
