package pubsub

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewEvent_CarriesPayload(t *testing.T) {
	req := require.New(t)

	event, err := NewEvent(EventMessageRead, "delivery_del-1", &MessageReadPayload{
		MessageID: "m1",
		ReaderID:  "t1",
		ReadBy:    []string{"s1", "t1"},
	})
	req.NoError(err)
	req.Equal(EventMessageRead, event.Type)
	req.Equal("delivery_del-1", event.RoomID)
	req.False(event.Timestamp.IsZero())

	var got MessageReadPayload
	req.NoError(event.UnmarshalPayload(&got))
	req.Equal([]string{"s1", "t1"}, got.ReadBy)
	req.Equal("t1", got.ReaderID)
}
