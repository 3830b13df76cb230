package service

import (
	"context"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/internal/hub"
)

// ChatService runs the per-connection chat protocol. Every Handle method
// returns an error wrapping one of the domain sentinels on failure.
type ChatService interface {
	HandleConnect(ctx context.Context, client *hub.Client, identity domain.Identity) error
	HandleAuth(ctx context.Context, client *hub.Client) error
	HandleJoinRoom(ctx context.Context, client *hub.Client, req domain.JoinRequest) (*domain.JoinResult, error)
	HandleSendMessage(ctx context.Context, client *hub.Client, req domain.SendRequest) (*domain.Message, error)
	HandleMarkRead(ctx context.Context, client *hub.Client, messageID string) (*domain.ReadReceipt, error)
	HandleDisconnect(ctx context.Context, client *hub.Client)
	Start(ctx context.Context) error
	Stop() error
}

// HistoryService reads conversation history through the cache.
type HistoryService interface {
	// GetHistory checks that caller takes part in conv and returns its latest
	// messages in ascending order.
	GetHistory(ctx context.Context, caller domain.Identity, conv domain.Conversation, limit int) (domain.RoomKey, []domain.Message, error)
	// RoomHistory skips authorization; the caller has already joined the room.
	RoomHistory(ctx context.Context, room domain.RoomKey, conv domain.Conversation, limit int) ([]domain.Message, error)
	Invalidate(ctx context.Context, room domain.RoomKey)
}
