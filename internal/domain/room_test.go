package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		conv    Conversation
		want    RoomKey
		wantErr bool
	}{
		{"delivery", DeliveryConversation("d1"), "delivery_d1", false},
		{"delivery with underscore", DeliveryConversation("order_77"), "delivery_order_77", false},
		{"direct ordered", DirectConversation("u1", "u2"), "chat_u1_u2", false},
		{"direct reversed", DirectConversation("u2", "u1"), "chat_u1_u2", false},
		{"empty", Conversation{}, "", true},
		{"both forms", Conversation{DeliveryKey: "d1", PeerA: "u1", PeerB: "u2"}, "", true},
		{"one peer only", Conversation{PeerA: "u1"}, "", true},
		{"self chat", DirectConversation("u1", "u1"), "", true},
		{"malformed delivery key", DeliveryConversation("d 1"), "", true},
		{"channel separator", DeliveryConversation("d:1"), "", true},
		{"underscore in user id", DirectConversation("a_b", "c"), "", true},
		{"too long", DeliveryConversation(strings.Repeat("x", 129)), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.conv)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidDescriptor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectRoom_Symmetric(t *testing.T) {
	pairs := [][2]string{{"a", "b"}, {"64f1c0", "64f1bf"}, {"B", "a"}, {"x.1", "x-1"}}
	for _, p := range pairs {
		assert.Equal(t, DirectRoom(p[0], p[1]), DirectRoom(p[1], p[0]))
	}
}

func TestRoomKey_Kind(t *testing.T) {
	assert.Equal(t, "delivery", DeliveryRoom("d1").Kind())
	assert.Equal(t, "direct", DirectRoom("u1", "u2").Kind())
}

func TestErrorCode(t *testing.T) {
	_, err := Resolve(Conversation{})
	assert.Equal(t, ErrCodeInvalidDescriptor, ErrorCode(err))
	assert.Equal(t, ErrCodeNotFound, ErrorCode(ErrNotFound))
	assert.Equal(t, ErrCodeInternalError, ErrorCode(assert.AnError))
	assert.Empty(t, ErrorCode(nil))
}
