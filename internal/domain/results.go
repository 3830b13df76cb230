package domain

// JoinRequest is a validated joinRoom payload from an authenticated caller.
type JoinRequest struct {
	DeliveryKey string
	PeerID      string
}

// JoinResult is returned by a successful join.
type JoinResult struct {
	Room    RoomKey
	Created bool // first member of the room on this instance
	History []Message
}

// SendRequest is a sendMessage payload.
type SendRequest struct {
	RoomKey     RoomKey
	Body        string
	DeliveryKey string
	ReceiverID  string
}

// ReadReceipt is returned by markRead.
type ReadReceipt struct {
	MessageID   string
	ReaderID    string
	AlreadyRead bool
	Room        RoomKey // empty when the room could not be resolved
	ReadBy      []string
}
