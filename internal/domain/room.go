package domain

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	deliveryRoomPrefix = "delivery_"
	directRoomPrefix   = "chat_"
	maxKeyLength       = 128
)

var (
	keyPattern    = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)
	userIDPattern = regexp.MustCompile(`^[A-Za-z0-9.\-]+$`)
)

// RoomKey is the canonical identity of a conversation room.
type RoomKey string

func (k RoomKey) String() string { return string(k) }

// IsDelivery reports whether the key names a delivery-scoped room.
func (k RoomKey) IsDelivery() bool {
	return strings.HasPrefix(string(k), deliveryRoomPrefix)
}

// Kind returns "delivery" or "direct".
func (k RoomKey) Kind() string {
	if k.IsDelivery() {
		return "delivery"
	}
	return "direct"
}

// Conversation addresses a conversation either by delivery key or by the
// two participants of a direct chat. Exactly one form may be set.
type Conversation struct {
	DeliveryKey string `json:"deliveryKey,omitempty"`
	PeerA       string `json:"peerA,omitempty"`
	PeerB       string `json:"peerB,omitempty"`
}

// DeliveryConversation addresses a delivery-scoped conversation.
func DeliveryConversation(deliveryKey string) Conversation {
	return Conversation{DeliveryKey: deliveryKey}
}

// DirectConversation addresses the direct chat between a and b.
func DirectConversation(a, b string) Conversation {
	return Conversation{PeerA: a, PeerB: b}
}

func (c Conversation) IsDelivery() bool {
	return c.DeliveryKey != ""
}

// HasPeer reports whether userID is one of the two direct-chat participants.
// Always false for delivery conversations.
func (c Conversation) HasPeer(userID string) bool {
	return !c.IsDelivery() && userID != "" && (c.PeerA == userID || c.PeerB == userID)
}

// ValidKey reports whether s is usable as a delivery key.
func ValidKey(s string) bool {
	return len(s) > 0 && len(s) <= maxKeyLength && keyPattern.MatchString(s)
}

// ValidUserID reports whether s is usable as a participant id. Underscores
// are excluded so that chat_<a>_<b> keys stay unambiguous.
func ValidUserID(s string) bool {
	return len(s) > 0 && len(s) <= maxKeyLength && userIDPattern.MatchString(s)
}

// DeliveryRoom returns the room key of a delivery conversation.
// The key is assumed valid; use Resolve for untrusted input.
func DeliveryRoom(deliveryKey string) RoomKey {
	return RoomKey(deliveryRoomPrefix + deliveryKey)
}

// DirectRoom returns the room key of the direct chat between a and b.
// The result does not depend on argument order.
func DirectRoom(a, b string) RoomKey {
	if b < a {
		a, b = b, a
	}
	return RoomKey(directRoomPrefix + a + "_" + b)
}

// Resolve maps a conversation to its canonical room key.
func Resolve(c Conversation) (RoomKey, error) {
	hasPeers := c.PeerA != "" || c.PeerB != ""

	switch {
	case c.DeliveryKey != "" && hasPeers:
		return "", fmt.Errorf("%w: both delivery key and peers given", ErrInvalidDescriptor)
	case c.DeliveryKey != "":
		if !ValidKey(c.DeliveryKey) {
			return "", fmt.Errorf("%w: malformed delivery key", ErrInvalidDescriptor)
		}
		return DeliveryRoom(c.DeliveryKey), nil
	case hasPeers:
		if !ValidUserID(c.PeerA) || !ValidUserID(c.PeerB) {
			return "", fmt.Errorf("%w: malformed participant id", ErrInvalidDescriptor)
		}
		if c.PeerA == c.PeerB {
			return "", fmt.Errorf("%w: cannot open a chat with yourself", ErrInvalidDescriptor)
		}
		return DirectRoom(c.PeerA, c.PeerB), nil
	default:
		return "", fmt.Errorf("%w: empty conversation", ErrInvalidDescriptor)
	}
}
