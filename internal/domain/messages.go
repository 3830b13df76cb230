package domain

import "time"

// WebSocket message types from client.
const (
	MsgTypeAuth        = "auth"
	MsgTypeJoinRoom    = "joinRoom"
	MsgTypeSendMessage = "sendMessage"
	MsgTypeMarkRead    = "markRead"
	MsgTypePing        = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeAck            = "ack"
	MsgTypeReceiveMessage = "receiveMessage"
	MsgTypeMessageRead    = "messageRead"
	MsgTypeChatHistory    = "chatHistory"
	MsgTypePong           = "pong"
)

// Ack statuses
const (
	AckStatusOK    = "ok"
	AckStatusError = "error"
)

// Error codes
const (
	ErrCodeUnauthenticated      = "UNAUTHENTICATED"
	ErrCodeAlreadyAuthenticated = "ALREADY_AUTHENTICATED"
	ErrCodeInvalidDescriptor    = "INVALID_DESCRIPTOR"
	ErrCodeInvalidMessage       = "INVALID_MESSAGE"
	ErrCodeNotInRoom            = "NOT_IN_ROOM"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodePersistenceFailure   = "PERSISTENCE_FAILURE"
	ErrCodeAuthorizationDenied  = "AUTHORIZATION_DENIED"
	ErrCodeConnectionClosed     = "CONNECTION_CLOSED"
	ErrCodeBadRequest           = "BAD_REQUEST"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// BaseMessage is the envelope shared by all inbound frames.
type BaseMessage struct {
	Type  string `json:"type"`
	AckID string `json:"ackId,omitempty"`
}

// Client -> Server messages

type JoinRoomMessage struct {
	BaseMessage
	DeliveryKey string `json:"deliveryKey,omitempty"`
	PeerID      string `json:"peerId,omitempty"`
}

type SendMessageMessage struct {
	BaseMessage
	RoomKey     string `json:"roomKey,omitempty"`
	Body        string `json:"body"`
	DeliveryKey string `json:"deliveryKey,omitempty"`
	ReceiverID  string `json:"receiverId,omitempty"`
}

type MarkReadMessage struct {
	BaseMessage
	MessageID string `json:"messageId"`
}

// Server -> Client messages

// AckMessage answers exactly one inbound event.
type AckMessage struct {
	Type        string `json:"type"`
	AckID       string `json:"ackId,omitempty"`
	Event       string `json:"event"`
	Status      string `json:"status"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
	Room        string `json:"room,omitempty"`
	MessageID   string `json:"messageId,omitempty"`
	AlreadyRead *bool  `json:"alreadyRead,omitempty"`
}

type SenderInfo struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

type ReceiveMessageOut struct {
	Type string `json:"type"`
	Room string `json:"room"`
	Message
	SenderInfo SenderInfo `json:"senderInfo"`
}

type MessageReadOut struct {
	Type      string `json:"type"`
	Room      string `json:"room"`
	MessageID string `json:"messageId"`
	ReaderID  string `json:"readerId"`
}

type ChatHistoryOut struct {
	Type     string    `json:"type"`
	Room     string    `json:"room"`
	Messages []Message `json:"messages"`
}

type PongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewOKAck builds a success ack for the given inbound envelope.
func NewOKAck(in BaseMessage) *AckMessage {
	return &AckMessage{
		Type:   MsgTypeAck,
		AckID:  in.AckID,
		Event:  in.Type,
		Status: AckStatusOK,
	}
}

// NewErrorAck builds a failure ack for the given inbound envelope.
func NewErrorAck(in BaseMessage, code, message string) *AckMessage {
	return &AckMessage{
		Type:    MsgTypeAck,
		AckID:   in.AckID,
		Event:   in.Type,
		Status:  AckStatusError,
		Code:    code,
		Message: message,
	}
}

func NewReceiveMessage(room RoomKey, msg *Message, sender Identity) *ReceiveMessageOut {
	return &ReceiveMessageOut{
		Type:       MsgTypeReceiveMessage,
		Room:       room.String(),
		Message:    *msg.Clone(),
		SenderInfo: SenderInfo{ID: sender.UserID, Role: sender.Role},
	}
}

func NewMessageRead(room RoomKey, messageID, readerID string) *MessageReadOut {
	return &MessageReadOut{
		Type:      MsgTypeMessageRead,
		Room:      room.String(),
		MessageID: messageID,
		ReaderID:  readerID,
	}
}

func NewChatHistory(room RoomKey, msgs []Message) *ChatHistoryOut {
	if msgs == nil {
		msgs = []Message{}
	}
	return &ChatHistoryOut{
		Type:     MsgTypeChatHistory,
		Room:     room.String(),
		Messages: msgs,
	}
}

func NewPong() *PongMessage {
	return &PongMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}
}
