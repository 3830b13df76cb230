package domain

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Message is a persisted chat message. ReadBy only grows.
type Message struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	ReceiverID  string    `json:"receiverId,omitempty"`
	DeliveryKey string    `json:"deliveryKey,omitempty"`
	Body        string    `json:"body"`
	SentAt      time.Time `json:"sentAt"`
	ReadBy      []string  `json:"readBy"`
}

// Conversation derives the conversation a message belongs to: its delivery
// if one is set, else the sender/receiver pair.
func (m *Message) Conversation() Conversation {
	if m.DeliveryKey != "" {
		return DeliveryConversation(m.DeliveryKey)
	}
	return DirectConversation(m.SenderID, m.ReceiverID)
}

// RoomKey resolves the room of the message. Messages without a delivery key
// and without a receiver have no room.
func (m *Message) RoomKey() (RoomKey, error) {
	if m.DeliveryKey == "" && m.ReceiverID == "" {
		return "", fmt.Errorf("%w: message %s has neither delivery nor receiver", ErrInvalidDescriptor, m.ID)
	}
	return Resolve(m.Conversation())
}

func (m *Message) IsReadBy(userID string) bool {
	return lo.Contains(m.ReadBy, userID)
}

// Clone returns a deep copy, so callers never share ReadBy backing arrays.
func (m *Message) Clone() *Message {
	c := *m
	c.ReadBy = append([]string(nil), m.ReadBy...)
	return &c
}
