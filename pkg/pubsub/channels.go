package pubsub

import "fmt"

// ChannelChatRoomEvents carries domain events of one chat room.
const ChannelChatRoomEvents = "chat:room:%s:events"

// ChatEventsTopic is the Kafka topic ChannelChatRoomEvents maps to.
const ChatEventsTopic = "chat-events"

// Chat event types.
const (
	EventMessageSent = "message_sent"
	EventMessageRead = "message_read"
)

// ChatRoomChannel returns the event channel for a room key.
func ChatRoomChannel(roomKey string) string {
	return fmt.Sprintf(ChannelChatRoomEvents, roomKey)
}

// MessageSentPayload is published after a message has been persisted.
type MessageSentPayload struct {
	MessageID   string `json:"message_id"`
	SenderID    string `json:"sender_id"`
	ReceiverID  string `json:"receiver_id,omitempty"`
	DeliveryKey string `json:"delivery_key,omitempty"`
	SentAt      int64  `json:"sent_at"` // unix millis
}

// MessageReadPayload is published after a read receipt has been persisted.
type MessageReadPayload struct {
	MessageID string   `json:"message_id"`
	ReaderID  string   `json:"reader_id"`
	ReadBy    []string `json:"read_by"`
}
