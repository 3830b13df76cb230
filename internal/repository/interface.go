package repository

import (
	"context"
	"fmt"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
)

var ErrMessageNotFound = fmt.Errorf("message %w", domain.ErrNotFound)

// MessageRepository is the durable log of chat messages.
type MessageRepository interface {
	// Append stores a new message. The id must be unique.
	Append(ctx context.Context, msg *domain.Message) error
	// Find returns ErrMessageNotFound for unknown ids.
	Find(ctx context.Context, id string) (*domain.Message, error)
	// Query returns the conversation's messages in ascending sentAt order.
	// With limit > 0 only the latest limit messages are returned.
	Query(ctx context.Context, conv domain.Conversation, limit int) ([]domain.Message, error)
	// MarkReadBy adds userID to the message's readBy set atomically and
	// returns the updated message. added is false when userID was already
	// present.
	MarkReadBy(ctx context.Context, id, userID string) (msg *domain.Message, added bool, err error)
	Close() error
}

// roomKeyOf returns the stored room column for msg. Messages that cannot be
// resolved are stored with an empty key and are reachable only by id.
func roomKeyOf(msg *domain.Message) string {
	key, err := msg.RoomKey()
	if err != nil {
		return ""
	}
	return key.String()
}

// tail keeps the last limit elements of an ascending slice.
func tail(msgs []domain.Message, limit int) []domain.Message {
	if limit > 0 && len(msgs) > limit {
		return msgs[len(msgs)-limit:]
	}
	return msgs
}

func reverse(msgs []domain.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
