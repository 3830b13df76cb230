package repository

import (
	"time"

	"github.com/inamkkkk/take-it-and-go/internal/domain"
	"github.com/inamkkkk/take-it-and-go/pkg/database"
)

// ChatMessageModel is the GORM model for chat_messages.
type ChatMessageModel struct {
	ID          string               `gorm:"type:varchar(64);primaryKey"`
	RoomKey     string               `gorm:"type:varchar(300);index:idx_chat_messages_room_sent,priority:1"`
	SenderID    string               `gorm:"type:varchar(128);not null;index"`
	ReceiverID  string               `gorm:"type:varchar(128);index"`
	DeliveryKey string               `gorm:"type:varchar(128);index"`
	Body        string               `gorm:"type:text;not null"`
	SentAt      time.Time            `gorm:"not null;index:idx_chat_messages_room_sent,priority:2"`
	ReadBy      database.StringArray `gorm:"type:text"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (ChatMessageModel) TableName() string {
	return "chat_messages"
}

func (m *ChatMessageModel) ToDomain() *domain.Message {
	return &domain.Message{
		ID:          m.ID,
		SenderID:    m.SenderID,
		ReceiverID:  m.ReceiverID,
		DeliveryKey: m.DeliveryKey,
		Body:        m.Body,
		SentAt:      m.SentAt.UTC(),
		ReadBy:      append([]string{}, m.ReadBy...),
	}
}

func MessageToModel(msg *domain.Message) *ChatMessageModel {
	return &ChatMessageModel{
		ID:          msg.ID,
		RoomKey:     roomKeyOf(msg),
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		DeliveryKey: msg.DeliveryKey,
		Body:        msg.Body,
		SentAt:      msg.SentAt.UTC(),
		ReadBy:      database.StringArray(append([]string{}, msg.ReadBy...)),
	}
}
